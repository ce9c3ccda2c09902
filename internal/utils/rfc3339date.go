package utils

import (
	"bytes"
	"encoding/json"
	"time"
)

// RFC3339Date пишет время в UTC без долей секунды. Нулевое время сериализуется как null.
type RFC3339Date struct {
	time.Time
}

var jsonNull = []byte("null")

func (d RFC3339Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return jsonNull, nil
	}
	return json.Marshal(d.UTC().Truncate(time.Second).Format(time.RFC3339))
}

func (d *RFC3339Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, jsonNull) {
		d.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return err
	}
	d.Time = parsed.UTC()
	return nil
}
