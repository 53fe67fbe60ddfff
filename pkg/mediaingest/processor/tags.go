package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// taggerVersion identifies the classification rule set; bumping it lets a
// reprocessing sweep distinguish stale tags.
const taggerVersion = "rules/v1"

// Tagger assigns content tags. This implementation is a deterministic
// rule-based classifier over MIME family and file extension; the pipeline
// treats it as an opaque capability, so a model-backed implementation can
// replace it behind the same contract.
type Tagger struct{}

// NewTagger creates a rule-based tagging processor.
func NewTagger() *Tagger { return &Tagger{} }

func (p *Tagger) Kind() mediaingest.JobKind { return mediaingest.KindMLTag }

func (p *Tagger) Process(ctx context.Context, asset *mediaingest.Asset, store mediaingest.BlobStore) (*mediaingest.Outcome, error) {
	// The source must exist even though classification runs on metadata;
	// tagging a missing blob would record tags for nothing.
	if _, err := store.GetMeta(ctx, asset.StorageKey); err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}

	tags := classify(asset.MimeType, asset.FileName)
	return &mediaingest.Outcome{
		Fields: map[string]interface{}{
			"tags":   tags,
			"tagger": taggerVersion,
		},
	}, nil
}

func classify(mimeType, fileName string) []string {
	set := make(map[string]struct{})

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		set["image"] = struct{}{}
		if strings.Contains(mimeType, "gif") {
			set["animation"] = struct{}{}
		}
	case strings.HasPrefix(mimeType, "video/"):
		set["video"] = struct{}{}
	case strings.HasPrefix(mimeType, "audio/"):
		set["audio"] = struct{}{}
	case strings.HasPrefix(mimeType, "text/"):
		set["document"] = struct{}{}
	case mimeType == "application/pdf":
		set["document"] = struct{}{}
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jpg", ".jpeg", ".heic", ".raw", ".dng":
		set["photo"] = struct{}{}
	case ".png", ".gif", ".webp", ".bmp":
		set["graphic"] = struct{}{}
	case ".mp4", ".mov", ".avi", ".mkv":
		set["video"] = struct{}{}
	case ".mp3", ".wav", ".flac", ".ogg":
		set["audio"] = struct{}{}
	}

	if len(set) == 0 {
		set["other"] = struct{}{}
	}

	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
