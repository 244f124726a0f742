package flow

import (
	"context"
	"time"

	"kumo/internal/errs"
	"kumo/internal/extract"
	"kumo/internal/model"
	"kumo/internal/value"
)

// ContentRequest resolves one consumable page: a book chapter, a video
// play page, a manga chapter, an audio episode.
type ContentRequest struct {
	URL string
}

// ExecuteContent runs the rule's content flow.
func ExecuteContent(ctx context.Context, req *ContentRequest, rc *RuntimeContext) (resp *model.ContentResponse, err error) {
	start := time.Now()
	defer func() { record(rc, "content", start, err) }()

	flow := rc.Rule.Content
	if flow == nil {
		return nil, errs.New(errs.KindMissingConfig, "rule %q has no content flow", rc.Rule.Meta.Name)
	}

	fc := NewFlowContext(rc)
	fc.Set("content_url", req.URL)
	fc.Set("chapter_url", req.URL)
	fc.Set("play_url", req.URL)
	fc.Set("url", req.URL)
	fc.Set("base_url", rc.BaseURL())

	httpResp, err := fc.fetch(ctx, flow.URL, flow.Request)
	if err != nil {
		return nil, err
	}

	root := value.ParseBody(httpResp.Body)
	ec := fc.ExtractContext()
	out := &model.ContentResponse{MediaType: string(rc.Rule.Meta.MediaType)}

	switch {
	case flow.Fields.Book != nil:
		f := flow.Fields.Book
		content, err := requireString("content", &f.Content, root, ec)
		if err != nil {
			return nil, err
		}
		out.Content = content
		out.Title = extractString(f.Title, root, ec)
		out.PrevURL = extractString(f.PrevURL, root, ec)
		out.NextURL = extractString(f.NextURL, root, ec)
	case flow.Fields.Video != nil:
		f := flow.Fields.Video
		playURL, err := requireString("play_url", &f.PlayURL, root, ec)
		if err != nil {
			return nil, err
		}
		out.PlayURL = absolutize(playURL, rc.BaseURL())
		if f.Headers != nil {
			if hv, err := extract.Field(f.Headers, root, ec); err == nil {
				if hm, ok := hv.AsJSON().(map[string]any); ok {
					out.Headers = map[string]string{}
					for name, v := range hm {
						if s, ok := v.(string); ok {
							out.Headers[name] = s
						}
					}
				}
			}
		}
	case flow.Fields.Manga != nil:
		f := flow.Fields.Manga
		imagesOut, err := extract.Field(&f.Images, root, ec)
		if err != nil {
			return nil, err
		}
		items, ok := imagesOut.AsArray()
		if !ok && !imagesOut.IsEmpty() {
			items = []value.Value{imagesOut}
		}
		for _, item := range items {
			if s, ok := item.AsString(); ok && s != "" {
				out.Images = append(out.Images, absolutize(s, rc.BaseURL()))
			}
		}
	case flow.Fields.Audio != nil:
		f := flow.Fields.Audio
		audioURL, err := requireString("audio_url", &f.AudioURL, root, ec)
		if err != nil {
			return nil, err
		}
		out.AudioURL = absolutize(audioURL, rc.BaseURL())
	default:
		return nil, errs.New(errs.KindMissingConfig, "content flow has no field set for media type %q", rc.Rule.Meta.MediaType)
	}

	return out, nil
}
