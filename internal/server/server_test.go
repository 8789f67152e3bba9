package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phinze/fpdeck/internal/coordinator"
	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/device/virtual"
	"github.com/phinze/fpdeck/internal/fpimage"
	"github.com/phinze/fpdeck/internal/print"
	"github.com/phinze/fpdeck/internal/server"
	"github.com/phinze/fpdeck/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const devID = "virtual_image:0"

var pixelExtractor = fpimage.ExtractorFunc(func(ctx context.Context, r fpimage.Raster) (*fpimage.Extraction, error) {
	ms := make([]fpimage.Minutia, int(r.Data[0]))
	for i := range ms {
		ms[i] = fpimage.Minutia{X: i, Y: int(r.Data[1])}
	}
	return &fpimage.Extraction{Minutiae: ms, Binarized: append([]byte(nil), r.Data...)}, nil
})

type pixelComparator struct{}

func (pixelComparator) Encode(img *fpimage.Image) ([]byte, error) {
	return []byte{byte(img.Minutiae()[0].Y)}, nil
}

func (pixelComparator) Compare(gallery, probe []byte) (int, error) {
	if len(gallery) != 1 || len(probe) != 1 {
		return 0, errors.New("bad template")
	}
	if gallery[0] == probe[0] {
		return 100, nil
	}
	return 0, nil
}

type fixture struct {
	router http.Handler
	dev    *device.Device
	drv    *virtual.Driver
	store  *storage.FileStore
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T, open bool) *fixture {
	t.Helper()
	drv := virtual.New(virtual.Options{Storage: true})
	d := device.New(drv,
		device.WithDetector(fpimage.NewDetector(pixelExtractor)),
		device.WithComparator(pixelComparator{}),
	)
	coord := coordinator.New()
	require.NoError(t, coord.Register(d))
	if open {
		require.NoError(t, coord.Start(context.Background()))
		t.Cleanup(func() { _ = coord.Stop(context.Background()) })
	}

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	h := &server.DeviceHandler{Devices: coord, Store: store}
	return &fixture{
		router: server.NewRouter(h, zap.New(core)),
		dev:    d,
		drv:    drv,
		store:  store,
		logs:   logs,
	}
}

func (f *fixture) enroll(t *testing.T, username string, finger print.Finger, id byte) *print.Print {
	t.Helper()
	p := print.NewTemplate(finger, username)
	p.Type = print.TypeNBIS
	p.Driver = virtual.DriverName
	p.DeviceID = "0"
	p.AddSample([]byte{id})
	require.NoError(t, f.store.Save(context.Background(), p))
	return p
}

func (f *fixture) feed(t *testing.T, id byte) {
	t.Helper()
	data := make([]byte, 16)
	data[0], data[1] = 12, id
	img, err := fpimage.NewFromData(4, 4, data, 0)
	require.NoError(t, err)
	require.NoError(t, f.drv.Feed(img))
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestListDevices(t *testing.T) {
	f := newFixture(t, true)
	w := f.do(http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []coordinator.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, devID, got[0].ID)
	assert.Equal(t, "open", got[0].State)
	assert.True(t, got[0].HasStorage)

	entries := f.logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
	assert.Equal(t, "/api/devices", entries[0].ContextMap()["path"])
}

func TestListPrints(t *testing.T) {
	f := newFixture(t, true)
	f.enroll(t, "ada", print.LeftIndex, 1)
	f.enroll(t, "bob", print.RightThumb, 2)

	w := f.do(http.MethodGet, "/api/devices/"+devID+"/prints", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []server.PrintSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "ada", got[0].Username)
	assert.Equal(t, "left-index", got[0].Finger)
}

func TestUnknownDevice(t *testing.T) {
	f := newFixture(t, true)
	w := f.do(http.MethodGet, "/api/devices/nope:0/prints", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerify(t *testing.T) {
	f := newFixture(t, true)
	f.enroll(t, "ada", print.LeftIndex, 5)

	f.feed(t, 5)
	w := f.do(http.MethodPost, "/api/devices/"+devID+"/verify", `{"username":"ada","finger":"left-index"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got server.MatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Match)
	require.NotNil(t, got.Print)
	assert.Equal(t, "ada", got.Print.Username)

	f.feed(t, 6)
	w = f.do(http.MethodPost, "/api/devices/"+devID+"/verify", `{"username":"ada","finger":"left-index"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got = server.MatchResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.False(t, got.Match)
	assert.Nil(t, got.Print)
}

func TestVerifyErrors(t *testing.T) {
	f := newFixture(t, true)
	f.enroll(t, "ada", print.LeftIndex, 5)
	path := "/api/devices/" + devID + "/verify"

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"bad finger", `{"username":"ada","finger":"toe"}`, http.StatusBadRequest},
		{"not enrolled", `{"username":"bob","finger":"left-index"}`, http.StatusNotFound},
		{"bad username", `{"username":"../etc","finger":"left-index"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestVerifyRetry(t *testing.T) {
	f := newFixture(t, true)
	f.enroll(t, "ada", print.LeftIndex, 5)
	require.NoError(t, f.drv.FeedRetry(device.RetryRemoveFinger))

	w := f.do(http.MethodPost, "/api/devices/"+devID+"/verify", `{"username":"ada","finger":"left-index"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"retry"`)
}

func TestVerifyClosedDevice(t *testing.T) {
	f := newFixture(t, false)
	f.enroll(t, "ada", print.LeftIndex, 5)

	w := f.do(http.MethodPost, "/api/devices/"+devID+"/verify", `{"username":"ada","finger":"left-index"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdentify(t *testing.T) {
	f := newFixture(t, true)
	path := "/api/devices/" + devID + "/identify"

	w := f.do(http.MethodPost, path, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "nothing enrolled")

	f.enroll(t, "ada", print.LeftIndex, 1)
	f.enroll(t, "bob", print.RightThumb, 2)
	f.feed(t, 2)

	w = f.do(http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got server.MatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Match)
	assert.Equal(t, "bob", got.Print.Username)
	assert.Equal(t, "right-thumb", got.Print.Finger)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, true)
	f.enroll(t, "ada", print.LeftIndex, 1)
	path := "/api/devices/" + devID + "/prints/ada/left-index"

	w := f.do(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	prints, err := f.store.List(context.Background(), virtual.DriverName, "0")
	require.NoError(t, err)
	assert.Empty(t, prints)

	w = f.do(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRejectsNonJSONBodies(t *testing.T) {
	f := newFixture(t, true)
	req := httptest.NewRequest(http.MethodPost, "/api/devices/"+devID+"/identify", strings.NewReader("hi"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}
