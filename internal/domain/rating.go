package domain

import (
	"fmt"

	"github.com/vertextoedge/photo-triage/internal/domain/vo"
)

// Action is a rating action a client can apply to a photo.
type Action string

const (
	ActionLike    Action = "like"
	ActionDislike Action = "dislike"
	ActionRate    Action = "rate"
)

// Landing buckets for a first like/dislike on an unrated photo.
const (
	LikeFromBaseRank    = 4
	DislikeFromBaseRank = 2
)

// ParseAction converts a string into an Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionLike, ActionDislike, ActionRate:
		return Action(s), nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, s)
	}
}

// NextLocation returns the bucket a photo moves to when action is applied in
// bucket from. rating is only used by ActionRate and must be in 1..5.
//
//	like     base -> sorted/4, sorted/n -> sorted/min(n+1, 5)
//	dislike  base -> sorted/2, sorted/n -> sorted/max(n-1, 1)
//	rate(k)  any  -> sorted/k
func NextLocation(from vo.Location, action Action, rating int) (vo.Location, error) {
	switch action {
	case ActionLike:
		if from.IsBase() {
			return vo.Sorted(LikeFromBaseRank), nil
		}
		return from.Up(), nil
	case ActionDislike:
		if from.IsBase() {
			return vo.Sorted(DislikeFromBaseRank), nil
		}
		return from.Down(), nil
	case ActionRate:
		if rating < vo.MinRank || rating > vo.MaxRank {
			return vo.Location{}, ErrInvalidRating
		}
		return vo.Sorted(rating), nil
	default:
		return vo.Location{}, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
}
