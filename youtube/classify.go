package youtube

import (
	"sort"

	"storefeed/storage"
)

// ShortThreshold is the duration, in seconds, at which an upload stops
// being a short.
const ShortThreshold = 180

// ClassifiedVideo is a candidate that made it into one of the buckets.
type ClassifiedVideo struct {
	VideoID   string
	Title     string
	Thumbnail string
	// Order is the 1-indexed recency rank within Type.
	Order int
	Type  storage.VideoType
}

// Classify ranks candidates newest first and fills the short and video
// buckets up to their capacities. A candidate whose bucket is full is
// skipped; it never spills into the other bucket. Invalid candidates are
// ignored. Candidates published at the same instant keep their input order.
// The result lists the videos followed by the shorts.
func Classify(cands []Candidate, limits Limits) []ClassifiedVideo {
	ranked := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Valid() {
			ranked = append(ranked, c)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PublishedAt.After(ranked[j].PublishedAt)
	})

	videos := make([]ClassifiedVideo, 0, max(limits.MaxVideos, 0))
	shorts := make([]ClassifiedVideo, 0, max(limits.MaxShorts, 0))

	for _, c := range ranked {
		if len(videos) >= limits.MaxVideos && len(shorts) >= limits.MaxShorts {
			break
		}

		switch {
		case c.DurationSeconds < ShortThreshold:
			if len(shorts) < limits.MaxShorts {
				shorts = append(shorts, classified(c, storage.VideoTypeShort, len(shorts)+1))
			}
		default:
			if len(videos) < limits.MaxVideos {
				videos = append(videos, classified(c, storage.VideoTypeVideo, len(videos)+1))
			}
		}
	}

	return append(videos, shorts...)
}

func classified(c Candidate, t storage.VideoType, order int) ClassifiedVideo {
	return ClassifiedVideo{
		VideoID:   c.ID,
		Title:     c.Title,
		Thumbnail: c.ThumbnailURL,
		Order:     order,
		Type:      t,
	}
}

// toStorage converts classified videos to store rows.
func toStorage(classified []ClassifiedVideo) []*storage.Video {
	rows := make([]*storage.Video, len(classified))
	for i, c := range classified {
		rows[i] = &storage.Video{
			VideoID:   c.VideoID,
			Type:      c.Type,
			Title:     c.Title,
			Thumbnail: c.Thumbnail,
			Order:     c.Order,
		}
	}
	return rows
}
