package print

import (
	"encoding/base64"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const formatVersion = 1

// DateFormat is the layout of serialized enroll dates.
const DateFormat = "2006-01-02"

type record struct {
	Version      int      `yaml:"version"`
	ID           string   `yaml:"id"`
	Type         string   `yaml:"type"`
	Driver       string   `yaml:"driver"`
	DeviceID     string   `yaml:"device_id"`
	DeviceStored bool     `yaml:"device_stored,omitempty"`
	Finger       string   `yaml:"finger"`
	Username     string   `yaml:"username,omitempty"`
	Description  string   `yaml:"description,omitempty"`
	EnrollDate   string   `yaml:"enroll_date,omitempty"`
	Samples      []string `yaml:"samples"`
}

// Serialize encodes p for host-side storage.
func (p *Print) Serialize() ([]byte, error) {
	rec := record{
		Version:      formatVersion,
		ID:           p.ID,
		Type:         p.Type.String(),
		Driver:       p.Driver,
		DeviceID:     p.DeviceID,
		DeviceStored: p.DeviceStored,
		Finger:       p.Finger.String(),
		Username:     p.Username,
		Description:  p.Description,
	}
	if !p.EnrollDate.IsZero() {
		rec.EnrollDate = p.EnrollDate.Format(DateFormat)
	}
	for _, s := range p.Samples {
		rec.Samples = append(rec.Samples, base64.StdEncoding.EncodeToString(s))
	}
	return yaml.Marshal(&rec)
}

// Deserialize decodes data produced by Serialize.
func Deserialize(data []byte) (*Print, error) {
	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if rec.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalid, rec.Version)
	}

	t, err := ParseType(rec.Type)
	if err != nil {
		return nil, err
	}
	finger, err := ParseFinger(rec.Finger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	p := &Print{
		ID:           rec.ID,
		Type:         t,
		Driver:       rec.Driver,
		DeviceID:     rec.DeviceID,
		DeviceStored: rec.DeviceStored,
		Finger:       finger,
		Username:     rec.Username,
		Description:  rec.Description,
	}
	if rec.EnrollDate != "" {
		if p.EnrollDate, err = time.Parse(DateFormat, rec.EnrollDate); err != nil {
			return nil, fmt.Errorf("%w: enroll date: %v", ErrInvalid, err)
		}
	}
	for i, s := range rec.Samples {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: sample %d: %v", ErrInvalid, i, err)
		}
		p.Samples = append(p.Samples, b)
	}
	if p.Type != TypeUndefined && len(p.Samples) == 0 {
		return nil, fmt.Errorf("%w: %s print without samples", ErrInvalid, p.Type)
	}
	return p, nil
}
