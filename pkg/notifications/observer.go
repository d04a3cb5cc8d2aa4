package notifications

import "time"

// Observer receives lifecycle events for metrics.
type Observer interface {
	Accepted(channel Channel)
	Delivered(channel Channel, status Status, attempt int, took time.Duration)
	Retried(channel Channel, attempt int)
	Read(channel Channel)
}

type nopObserver struct{}

func (nopObserver) Accepted(Channel)                             {}
func (nopObserver) Delivered(Channel, Status, int, time.Duration) {}
func (nopObserver) Retried(Channel, int)                         {}
func (nopObserver) Read(Channel)                                 {}
