package event

import (
	"encoding/json"
	"time"
)

// UnixTime is a wall-clock timestamp serialized as epoch seconds. The whole
// deployment uses epoch seconds consistently; sub-second precision is not
// carried on the wire.
type UnixTime struct {
	time.Time
}

// NewUnixTime truncates t to second precision.
func NewUnixTime(t time.Time) UnixTime {
	return UnixTime{t.Truncate(time.Second)}
}

func (u UnixTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Unix())
}

func (u *UnixTime) UnmarshalJSON(data []byte) error {
	var secs int64
	if err := json.Unmarshal(data, &secs); err != nil {
		return err
	}
	u.Time = time.Unix(secs, 0)
	return nil
}
