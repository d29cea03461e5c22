package repository

import "github.com/user/enricher-service/internal/entity"

// MutationSource delivers a notification whenever the watched document changes.
type MutationSource interface {
	Events() <-chan entity.MutationEvent
}
