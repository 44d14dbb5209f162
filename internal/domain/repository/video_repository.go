package repository

import "github.com/molpadia/molpareplay/internal/domain/entity"

type VideoRepository interface {
	// Get the video by the video ID, nil if it does not exist.
	GetById(id string) (*entity.Video, error)
	// Save an entity to the persistence.
	Save(video *entity.Video) error
}
