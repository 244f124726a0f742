package rule

// ItemFields defines what to extract from each entry of a search or
// discovery list. Title and URL are required; the rest are optional.
type ItemFields struct {
	Title    FieldExtractor
	URL      FieldExtractor
	Cover    *FieldExtractor
	Summary  *FieldExtractor
	Author   *FieldExtractor
	Latest   *FieldExtractor
	Score    *FieldExtractor
	Status   *FieldExtractor
	Category *FieldExtractor
	Extra    *FieldExtractor
}

// ListRule extracts a nested list (chapters, episodes, play lines)
// from a detail page: List yields the entries, the per-item extractors
// run against each entry.
type ListRule struct {
	List  FieldExtractor
	Title FieldExtractor
	URL   FieldExtractor
}

// PlayLineRule extracts video play lines, each holding its own episode
// list.
type PlayLineRule struct {
	List     FieldExtractor
	Name     FieldExtractor
	Episodes ListRule
}

// BookDetailFields covers a book detail page.
type BookDetailFields struct {
	Title      FieldExtractor
	Author     FieldExtractor
	Cover      *FieldExtractor
	Intro      *FieldExtractor
	Category   *FieldExtractor
	Tags       *FieldExtractor
	Status     *FieldExtractor
	LastChapter *FieldExtractor
	UpdateTime *FieldExtractor
	WordCount  *FieldExtractor
	TocURL     *FieldExtractor
	Chapters   *ListRule
}

// VideoDetailFields covers a video detail page.
type VideoDetailFields struct {
	Title    FieldExtractor
	Cover    *FieldExtractor
	Intro    *FieldExtractor
	Director *FieldExtractor
	Actors   *FieldExtractor
	Category *FieldExtractor
	Region   *FieldExtractor
	Year     *FieldExtractor
	Score    *FieldExtractor
	PlayLines *PlayLineRule
}

// AudioDetailFields covers an audio/podcast detail page.
type AudioDetailFields struct {
	Title    FieldExtractor
	Cover    *FieldExtractor
	Intro    *FieldExtractor
	Author   *FieldExtractor
	Category *FieldExtractor
	Episodes *ListRule
}

// MangaDetailFields covers a manga detail page.
type MangaDetailFields struct {
	Title    FieldExtractor
	Cover    *FieldExtractor
	Intro    *FieldExtractor
	Author   *FieldExtractor
	Status   *FieldExtractor
	Category *FieldExtractor
	Chapters *ListRule
}

// DetailFields holds the media-specific field set selected by the
// rule's meta.media_type.
type DetailFields struct {
	Book  *BookDetailFields
	Video *VideoDetailFields
	Audio *AudioDetailFields
	Manga *MangaDetailFields
}

// BookContentFields extracts a chapter reading page.
type BookContentFields struct {
	Content FieldExtractor
	Title   *FieldExtractor
	PrevURL *FieldExtractor
	NextURL *FieldExtractor
}

// VideoContentFields resolves the real play URL of a play page.
type VideoContentFields struct {
	PlayURL FieldExtractor
	Headers *FieldExtractor
}

// MangaContentFields extracts the image list of a chapter page.
type MangaContentFields struct {
	Images FieldExtractor
}

// AudioContentFields resolves the audio stream URL.
type AudioContentFields struct {
	AudioURL FieldExtractor
}

// ContentFields holds the media-specific content field set.
type ContentFields struct {
	Book  *BookContentFields
	Video *VideoContentFields
	Audio *AudioContentFields
	Manga *MangaContentFields
}
