package client

import (
	"time"

	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/session"
	"github.com/openmined/docbox/internal/transfer"
	"github.com/openmined/docbox/internal/version"
)

type SessionStatus struct {
	State         string        `json:"state" yaml:"state"`
	Email         string        `json:"email,omitempty" yaml:"email,omitempty"`
	ExpiresAt     time.Time     `json:"expires_at" yaml:"expires_at"`
	Authenticated bool          `json:"authenticated" yaml:"authenticated"`
	Refresh       session.Stats `json:"refresh" yaml:"refresh"`
	StorageUsed   int64         `json:"storage_used" yaml:"storage_used"`
	StorageLimit  int64         `json:"storage_limit" yaml:"storage_limit"`
}

// Status is a point-in-time view of the whole client.
type Status struct {
	Version string                   `json:"version" yaml:"version"`
	Server  string                   `json:"server" yaml:"server"`
	Session SessionStatus            `json:"session" yaml:"session"`
	Queues  []transfer.Summary       `json:"queues" yaml:"queues"`
	Busy    bool                     `json:"busy" yaml:"busy"`
	HTTP    docsdk.HTTPStatsSnapshot `json:"http" yaml:"http"`
}

func (c *Client) Status() Status {
	snap := c.sess.Session()
	st := SessionStatus{
		State:         c.sess.State().String(),
		ExpiresAt:     snap.ExpiresAt,
		Authenticated: snap.IsAuthenticated(),
		Refresh:       c.sess.Stats(),
	}
	if snap.User != nil {
		st.Email = snap.User.Email
		st.StorageUsed = snap.User.StorageUsed
		st.StorageLimit = snap.User.StorageLimit
	}

	return Status{
		Version: version.Version,
		Server:  c.config.ServerURL,
		Session: st,
		Queues: []transfer.Summary{
			c.Uploads.Summary(),
			c.Downloads.Summary(),
			c.Processing.Summary(),
		},
		Busy: c.Busy(),
		HTTP: c.api.Stats(),
	}
}
