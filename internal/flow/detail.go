package flow

import (
	"context"
	"time"

	"kumo/internal/errs"
	"kumo/internal/extract"
	"kumo/internal/model"
	"kumo/internal/rule"
	"kumo/internal/value"
)

// DetailRequest asks for one item's detail page.
type DetailRequest struct {
	URL string
}

// ExecuteDetail runs the rule's detail flow and dispatches on the
// declared media type.
func ExecuteDetail(ctx context.Context, req *DetailRequest, rc *RuntimeContext) (resp *model.DetailResponse, err error) {
	start := time.Now()
	defer func() { record(rc, "detail", start, err) }()

	flow := rc.Rule.Detail
	if flow == nil {
		return nil, errs.New(errs.KindMissingConfig, "rule %q has no detail flow", rc.Rule.Meta.Name)
	}

	fc := NewFlowContext(rc)
	fc.Set("detail_url", req.URL)
	fc.Set("url", req.URL)
	fc.Set("base_url", rc.BaseURL())

	httpResp, err := fc.fetch(ctx, flow.URL, flow.Request)
	if err != nil {
		return nil, err
	}

	root := value.ParseBody(httpResp.Body)
	ec := fc.ExtractContext()
	out := &model.DetailResponse{MediaType: string(rc.Rule.Meta.MediaType)}

	switch {
	case flow.Fields.Book != nil:
		out.Book, err = extractBookDetail(fc, flow.Fields.Book, root, ec)
	case flow.Fields.Video != nil:
		out.Video, err = extractVideoDetail(fc, flow.Fields.Video, root, ec)
	case flow.Fields.Audio != nil:
		out.Audio, err = extractAudioDetail(fc, flow.Fields.Audio, root, ec)
	case flow.Fields.Manga != nil:
		out.Manga, err = extractMangaDetail(fc, flow.Fields.Manga, root, ec)
	default:
		// No media-specific field set: fall back to a generic JSON
		// envelope of whatever the page held.
		raw := map[string]any{"url": httpResp.FinalURL, "status": httpResp.Status}
		if root.Kind() == value.KindJSON {
			raw["body"] = root.AsJSON()
		}
		out.Raw = raw
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func extractBookDetail(fc *FlowContext, fields *rule.BookDetailFields, root value.Value, ec *extract.Context) (*model.BookDetail, error) {
	title, err := requireString("title", &fields.Title, root, ec)
	if err != nil {
		return nil, err
	}
	author, err := requireString("author", &fields.Author, root, ec)
	if err != nil {
		return nil, err
	}
	detail := &model.BookDetail{
		Title:       title,
		Author:      author,
		Cover:       extractString(fields.Cover, root, ec),
		Intro:       extractString(fields.Intro, root, ec),
		Category:    extractString(fields.Category, root, ec),
		Tags:        extractString(fields.Tags, root, ec),
		Status:      extractString(fields.Status, root, ec),
		LastChapter: extractString(fields.LastChapter, root, ec),
		UpdateTime:  extractString(fields.UpdateTime, root, ec),
		WordCount:   extractString(fields.WordCount, root, ec),
		TocURL:      extractString(fields.TocURL, root, ec),
	}
	if fields.Chapters != nil {
		detail.Chapters = fc.extractChapterList(fields.Chapters, root, ec)
	}
	return detail, nil
}

func extractVideoDetail(fc *FlowContext, fields *rule.VideoDetailFields, root value.Value, ec *extract.Context) (*model.VideoDetail, error) {
	title, err := requireString("title", &fields.Title, root, ec)
	if err != nil {
		return nil, err
	}
	detail := &model.VideoDetail{
		Title:    title,
		Cover:    extractString(fields.Cover, root, ec),
		Intro:    extractString(fields.Intro, root, ec),
		Director: extractString(fields.Director, root, ec),
		Actors:   extractString(fields.Actors, root, ec),
		Category: extractString(fields.Category, root, ec),
		Region:   extractString(fields.Region, root, ec),
		Year:     extractString(fields.Year, root, ec),
		Score:    extractString(fields.Score, root, ec),
	}
	if fields.PlayLines != nil {
		detail.PlayLines = fc.extractPlayLines(fields.PlayLines, root, ec)
	}
	return detail, nil
}

func extractAudioDetail(fc *FlowContext, fields *rule.AudioDetailFields, root value.Value, ec *extract.Context) (*model.AudioDetail, error) {
	title, err := requireString("title", &fields.Title, root, ec)
	if err != nil {
		return nil, err
	}
	detail := &model.AudioDetail{
		Title:    title,
		Cover:    extractString(fields.Cover, root, ec),
		Intro:    extractString(fields.Intro, root, ec),
		Author:   extractString(fields.Author, root, ec),
		Category: extractString(fields.Category, root, ec),
	}
	if fields.Episodes != nil {
		detail.Episodes = fc.extractChapterList(fields.Episodes, root, ec)
	}
	return detail, nil
}

func extractMangaDetail(fc *FlowContext, fields *rule.MangaDetailFields, root value.Value, ec *extract.Context) (*model.MangaDetail, error) {
	title, err := requireString("title", &fields.Title, root, ec)
	if err != nil {
		return nil, err
	}
	detail := &model.MangaDetail{
		Title:    title,
		Cover:    extractString(fields.Cover, root, ec),
		Intro:    extractString(fields.Intro, root, ec),
		Author:   extractString(fields.Author, root, ec),
		Status:   extractString(fields.Status, root, ec),
		Category: extractString(fields.Category, root, ec),
	}
	if fields.Chapters != nil {
		detail.Chapters = fc.extractChapterList(fields.Chapters, root, ec)
	}
	return detail, nil
}

// extractChapterList runs a nested list rule (chapters, episodes).
// Failing entries drop with a log line; they never fail the detail.
func (fc *FlowContext) extractChapterList(lr *rule.ListRule, root value.Value, ec *extract.Context) []model.Chapter {
	listFE := lr.List
	listFE.Nullable = true
	listOut, err := extract.Field(&listFE, root, ec)
	if err != nil {
		fc.rc.Logger.Warn("chapter list extraction failed", "error", err)
		return nil
	}
	entries, ok := listOut.AsArray()
	if !ok {
		if listOut.IsEmpty() {
			return nil
		}
		entries = []value.Value{listOut}
	}

	chapters := make([]model.Chapter, 0, len(entries))
	for i, entry := range entries {
		title, err := requireString("title", &lr.Title, entry, ec)
		if err != nil {
			fc.rc.Logger.Warn("dropping chapter", "index", i, "error", err)
			continue
		}
		chURL, err := requireString("url", &lr.URL, entry, ec)
		if err != nil {
			fc.rc.Logger.Warn("dropping chapter", "index", i, "error", err)
			continue
		}
		chapters = append(chapters, model.Chapter{Title: title, URL: chURL})
	}
	return chapters
}

func (fc *FlowContext) extractPlayLines(pr *rule.PlayLineRule, root value.Value, ec *extract.Context) []model.PlayLine {
	listFE := pr.List
	listFE.Nullable = true
	listOut, err := extract.Field(&listFE, root, ec)
	if err != nil {
		fc.rc.Logger.Warn("play line extraction failed", "error", err)
		return nil
	}
	entries, ok := listOut.AsArray()
	if !ok {
		if listOut.IsEmpty() {
			return nil
		}
		entries = []value.Value{listOut}
	}

	lines := make([]model.PlayLine, 0, len(entries))
	for i, entry := range entries {
		name := extractString(&pr.Name, entry, ec)
		if name == "" {
			fc.rc.Logger.Warn("dropping play line without name", "index", i)
			continue
		}
		lines = append(lines, model.PlayLine{
			Name:     name,
			Episodes: fc.extractChapterList(&pr.Episodes, entry, ec),
		})
	}
	return lines
}
