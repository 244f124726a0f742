package rule

// RequestConfig overrides how a flow issues its HTTP request. Header
// values and the body are templates rendered against the flow context.
type RequestConfig struct {
	Method  string
	Headers map[string]Template
	Body    Template
	HTTP    *HTTPConfig
}

// PaginationType tags the pagination variant.
type PaginationType string

const (
	PaginationPageNumber PaginationType = "page_number"
	PaginationOffset     PaginationType = "offset"
	PaginationCursor     PaginationType = "cursor"
)

// Pagination describes how a flow advances across pages.
type Pagination struct {
	Type PaginationType

	// page_number
	StartPage int
	PageParam string
	MaxPages  int

	// offset
	Start      int
	Step       int
	Param      string
	LimitParam string
	MaxOffset  int
	TotalCount *FieldExtractor

	// cursor
	CursorParam string
	NextCursor  *FieldExtractor
	MaxRequests int

	// shared
	HasNext *FieldExtractor
}

// FilterOption is one selectable value inside a filter group.
type FilterOption struct {
	Name  string
	Value string
}

// FilterGroup is a named set of mutually exclusive filter options
// (e.g. genre, region, year).
type FilterGroup struct {
	Name    string
	Key     string
	Options []FilterOption
}

// CategoryItem is one discovery category.
type CategoryItem struct {
	Key   string
	Label string
	Value string
}

// CategorySource supplies discovery categories either statically or by
// extracting them from a page.
type CategorySource struct {
	Static []CategoryItem

	// dynamic
	URL      Template
	Selector string
	KeyAttr  string
	LabelAttr string
}

// SearchFlow implements keyword search. List yields the result
// entries; Fields runs against each entry.
type SearchFlow struct {
	Description string
	URL         Template
	Request     *RequestConfig
	Pagination  *Pagination
	List        FieldExtractor
	Fields      ItemFields
}

// DiscoveryFlow implements browse/category listing.
type DiscoveryFlow struct {
	Description string
	URL         Template
	Request     *RequestConfig
	Pagination  *Pagination
	Categories  *CategorySource
	Filters     []FilterGroup
	List        FieldExtractor
	Fields      ItemFields
}

// DetailFlow fetches and shapes one item's detail page.
type DetailFlow struct {
	Description string
	URL         Template
	Request     *RequestConfig
	Fields      DetailFields
}

// ContentFlow resolves a consumable content page (chapter text, play
// URL, image list, audio stream).
type ContentFlow struct {
	Description string
	URL         Template
	Request     *RequestConfig
	Fields      ContentFields
}

// LoginType tags the login mode.
type LoginType string

const (
	LoginScript     LoginType = "script"
	LoginWebView    LoginType = "webview"
	LoginCredential LoginType = "credential"
)

// LoginField describes one input the host application collects from
// the user (script and credential modes).
type LoginField struct {
	Key      string
	Label    string
	Secret   bool
	Required bool
}

// CredentialStorage says where collected credential fields land:
// the HTTP client's cookie jar or its default headers.
type CredentialStorage struct {
	Type string // "cookie" or "header"
	Name string // header name or cookie name; empty means field key
}

// LoginFlow configures one of three login modes.
type LoginFlow struct {
	Type LoginType

	// script mode
	Fields      []LoginField
	InitScript  string
	LoginScript string

	// webview mode
	StartURL        Template
	CheckScript     string
	CheckIntervalMs int
	FinishScript    string
	TimeoutSeconds  int

	// credential mode
	Storage *CredentialStorage
}
