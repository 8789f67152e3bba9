package print_test

import (
	"testing"
	"time"

	"github.com/phinze/fpdeck/internal/print"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enrolled() *print.Print {
	p := print.NewTemplate(print.RightIndex, "ada")
	p.Type = print.TypeNBIS
	p.Driver = "virtual_image"
	p.DeviceID = "0"
	p.Description = "office"
	p.EnrollDate = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	p.AddSample([]byte{1, 2, 3})
	p.AddSample([]byte{4, 5})
	return p
}

func TestNewTemplateIsBlank(t *testing.T) {
	p := print.NewTemplate(print.LeftThumb, "bob")
	assert.True(t, p.IsBlank())
	assert.NotEmpty(t, p.ID)
	assert.NotEqual(t, p.ID, print.New().ID)

	p.AddSample([]byte{1})
	assert.False(t, p.IsBlank())
}

func TestSerializeRoundTrip(t *testing.T) {
	p := enrolled()
	data, err := p.Serialize()
	require.NoError(t, err)

	got, err := print.Deserialize(data)
	require.NoError(t, err)
	assert.True(t, p.Equal(got))
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, print.RightIndex, got.Finger)
	assert.Equal(t, "ada", got.Username)
	assert.Equal(t, "office", got.Description)
	assert.True(t, p.EnrollDate.Equal(got.EnrollDate))
}

func TestDeserializeRejectsBadData(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "::: nope"},
		{"wrong version", "version: 9\ntype: nbis\nsamples: [AQ==]\n"},
		{"unknown type", "version: 1\ntype: fancy\nfinger: unknown\nsamples: [AQ==]\n"},
		{"unknown finger", "version: 1\ntype: nbis\nfinger: toe\nsamples: [AQ==]\n"},
		{"bad base64", "version: 1\ntype: nbis\nfinger: unknown\nsamples: ['***']\n"},
		{"no samples", "version: 1\ntype: nbis\nfinger: unknown\n"},
		{"bad date", "version: 1\ntype: nbis\nfinger: unknown\nenroll_date: yesterday\nsamples: [AQ==]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := print.Deserialize([]byte(tt.data))
			assert.ErrorIs(t, err, print.ErrInvalid)
		})
	}
}

func TestEqual(t *testing.T) {
	a := enrolled()
	b := a.Clone()
	assert.True(t, a.Equal(b))

	b.Username = "someone else"
	assert.True(t, a.Equal(b), "metadata is ignored")

	b.Samples[1] = []byte{4, 6}
	assert.False(t, a.Equal(b))

	c := a.Clone()
	c.DeviceID = "1"
	assert.False(t, a.Equal(c))

	assert.False(t, a.Equal(nil))
	assert.True(t, (*print.Print)(nil).Equal(nil))
}

func TestCloneIsDeep(t *testing.T) {
	a := enrolled()
	b := a.Clone()
	b.Samples[0][0] = 99
	assert.Equal(t, byte(1), a.Samples[0][0])
}

func TestFingerNames(t *testing.T) {
	for _, f := range print.Fingers() {
		got, err := print.ParseFinger(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	assert.Len(t, print.Fingers(), 10)
	assert.Equal(t, "unknown", print.Finger(42).String())

	_, err := print.ParseFinger("thumb")
	assert.Error(t, err)
}

func TestCompatibleWith(t *testing.T) {
	p := enrolled()
	assert.True(t, p.CompatibleWith("virtual_image", "0"))
	assert.False(t, p.CompatibleWith("virtual_image", "1"))
	assert.False(t, p.CompatibleWith("elan", "0"))
}
