// Package serp defines core types shared across subsystems.
package serp

// Device is the emulated device class for a SERP request.
type Device string

// Supported device classes.
const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

// DefaultOS returns the operating system the remote API assumes for a device
// when none is configured.
func (d Device) DefaultOS() string {
	if d == DeviceMobile {
		return "android"
	}
	return "windows"
}

// KeywordJob captures one keyword check request. Immutable once constructed;
// one instance per requested keyword per run.
type KeywordJob struct {
	Keyword           string `json:"keyword"`
	Domain            string `json:"domain"`
	LocationCode      int    `json:"location_code"`
	LanguageCode      string `json:"language_code"`
	Device            Device `json:"device"`
	OS                string `json:"os"`
	Depth             int    `json:"depth"`
	IncludeSubdomains bool   `json:"include_subdomains"`
}

// TaskHandle identifies a queued remote task created in Standard mode.
// Consumed exactly once by the fetcher.
type TaskHandle struct {
	ID  string
	Job KeywordJob
}

// RawSerpItem is one listing within a raw search result payload. Transient;
// consumed immediately by the parser and never stored.
type RawSerpItem struct {
	Type         string `json:"type"`
	RankGroup    *int   `json:"rank_group"`
	RankAbsolute *int   `json:"rank_absolute"`
	URL          string `json:"url"`
	Title        string `json:"title"`
}

// RawResult is one raw search result payload as returned by the remote API.
type RawResult struct {
	Keyword      string        `json:"keyword"`
	SEDomain     string        `json:"se_domain"`
	LocationName string        `json:"location_name"`
	KeywordInfo  *KeywordInfo  `json:"keyword_info,omitempty"`
	Items        []RawSerpItem `json:"items"`
}

// KeywordInfo carries the keyword echo some payload variants nest one level
// deeper.
type KeywordInfo struct {
	Keyword string `json:"keyword"`
}

// ResultKeyword returns the keyword echoed in the payload, checking the nested
// variant as a fallback.
func (r RawResult) ResultKeyword() string {
	if r.Keyword != "" {
		return r.Keyword
	}
	if r.KeywordInfo != nil {
		return r.KeywordInfo.Keyword
	}
	return ""
}

// RankRecord is the canonical per-keyword output. Exactly one RankRecord is
// the eventual terminus of each KeywordJob. Found implies both ranks are set
// and Note is empty; !Found implies both ranks are nil and Note explains why.
type RankRecord struct {
	Keyword      string `json:"keyword"`
	Found        bool   `json:"found"`
	OrganicRank  *int   `json:"organic_rank"`
	AbsoluteRank *int   `json:"absolute_rank"`
	Type         string `json:"type,omitempty"`
	URL          string `json:"url,omitempty"`
	Title        string `json:"title,omitempty"`
	LanguageCode string `json:"language_code"`
	SEDomain     string `json:"se_domain,omitempty"`
	LocationName string `json:"location_name,omitempty"`
	Device       Device `json:"device"`
	OS           string `json:"os"`
	Depth        int    `json:"depth"`
	Note         string `json:"note,omitempty"`
}

// MissRecord builds a found=false record for a job with the given note.
func MissRecord(job KeywordJob, note string) RankRecord {
	return RankRecord{
		Keyword:      job.Keyword,
		Found:        false,
		LanguageCode: job.LanguageCode,
		Device:       job.Device,
		OS:           job.OS,
		Depth:        job.Depth,
		Note:         note,
	}
}

// Status tags a remote task outcome after envelope decoding. Internal logic
// never inspects raw status codes; the HTTP client maps them here.
type Status string

// Task outcome tags.
const (
	// StatusOK means the task completed and carries a result payload.
	StatusOK Status = "ok"
	// StatusCreated means a queued task was accepted (Standard submission).
	StatusCreated Status = "created"
	// StatusQueued means the task exists but is not finished yet. Non-terminal.
	StatusQueued Status = "queued"
	// StatusError is a terminal remote failure for that task only.
	StatusError Status = "error"
)

// SubmitOutcome is the decoded response of an immediate (Live) submission.
type SubmitOutcome struct {
	Status  Status
	Result  *RawResult
	Message string
}

// EnqueueOutcome is the decoded per-task response of a batch submission.
type EnqueueOutcome struct {
	Status  Status
	TaskID  string
	Message string
}

// FetchOutcome is the decoded response of a queued-task result fetch.
// StatusQueued leaves the task pending for the next poll cycle.
type FetchOutcome struct {
	Status  Status
	Result  *RawResult
	Message string
}
