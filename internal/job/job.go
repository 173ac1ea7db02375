// Package job defines the unit of work flowing through the queue and its
// wire encoding.
//
// The queue message is the job's only durable representation between stages;
// there is no separate job table. Field names on the wire are fixed
// (video_fid, mp3_fid, username) so external consumers can read the channel.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed indicates a message body that does not decode into a valid Job.
// It is distinct from business-logic failures: a malformed message can never
// succeed on redelivery.
var ErrMalformed = errors.New("malformed job")

// Job describes one video-to-audio conversion task.
//
// MP3FID is nil until the conversion worker has stored the audio blob; a job
// on the conversion channel always has it unset, a job on the notification
// channel always has it set with VideoFID preserved for traceability.
type Job struct {
	VideoFID string  `json:"video_fid"`
	MP3FID   *string `json:"mp3_fid"`
	Username string  `json:"username"`
}

// New builds a conversion job for a freshly stored video blob.
func New(videoFID, username string) Job {
	return Job{VideoFID: videoFID, Username: username}
}

// WithAudio returns a copy carrying the stored audio blob identifier,
// ready for the notification channel.
func (j Job) WithAudio(mp3FID string) Job {
	j.MP3FID = &mp3FID
	return j
}

// Converted reports whether the audio blob identifier is set.
func (j Job) Converted() bool {
	return j.MP3FID != nil && strings.TrimSpace(*j.MP3FID) != ""
}

// Encode serializes the job to its wire form.
func (j Job) Encode() ([]byte, error) {
	if err := j.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	return body, nil
}

// Decode parses a message body. Parse and field-level failures return
// ErrMalformed so consumers can drop the message instead of retrying it.
func Decode(body []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(body, &j); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := j.validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}

func (j Job) validate() error {
	if strings.TrimSpace(j.VideoFID) == "" {
		return fmt.Errorf("%w: missing video_fid", ErrMalformed)
	}
	if strings.TrimSpace(j.Username) == "" {
		return fmt.Errorf("%w: missing username", ErrMalformed)
	}
	if j.MP3FID != nil && strings.TrimSpace(*j.MP3FID) == "" {
		return fmt.Errorf("%w: empty mp3_fid", ErrMalformed)
	}
	return nil
}
