package mq

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Subscriber is any queue that can be subscribed to per topic.
type Subscriber[M any] interface {
	Subscribe(uuid.UUID) (uuid.UUID, <-chan M, error)
	DeSubscribe(id uuid.UUID) error
}

// SubscribeProcessor subscribes service to topicID and feeds transformed messages
// into outputStream until ctx ends or the source closes. outputStream is closed on exit.
// transformFunc may skip a message by returning true.
func SubscribeProcessor[S Subscriber[M], M any, O any](
	topicID uuid.UUID,
	ctx context.Context,
	service S,
	transformFunc func(msg M) (O, bool, error),
	outputStream chan<- O,
) error {
	uid, inputCh, err := service.Subscribe(topicID)
	if err != nil {
		close(outputStream)
		return err
	}

	go func() {
		defer func() {
			if err := service.DeSubscribe(uid); err != nil {
				slog.Debug("de-subscribe failed", "subscription", uid, "error", err)
			}
			close(outputStream)
		}()

		for {
			select {
			case msg, ok := <-inputCh:
				if !ok {
					return
				}

				output, skip, err := transformFunc(msg)
				if err != nil {
					slog.Warn("dropping message that failed to transform", "subscription", uid, "error", err)
					continue
				}
				if skip {
					continue
				}

				select {
				case outputStream <- output:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
