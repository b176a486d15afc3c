package serp

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const organicType = "organic"

// rankOrMax treats a missing rank as +infinity so unranked items sort last.
func rankOrMax(v *int) int {
	if v == nil {
		return int(^uint(0) >> 1)
	}
	return *v
}

// NormalizeHost reduces a URL or bare domain to a comparable host: scheme,
// "www." prefix, port, path, and trailing slash are stripped and the result is
// lowercased. Malformed input normalizes to the empty string.
func NormalizeHost(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimSuffix(u.Hostname(), ".")
	return strings.TrimPrefix(host, "www.")
}

// MatchesDomain reports whether a candidate URL belongs to the target domain.
// The target matches exactly or as a parent of a subdomain: the suffix test is
// anchored at a label boundary, so "shop.example.com" matches "example.com"
// while "notexample.com" and "example.com.evil.com" do not. Malformed URLs
// never match.
func MatchesDomain(candidateURL, targetDomain string) bool {
	host := NormalizeHost(candidateURL)
	target := NormalizeHost(targetDomain)
	if host == "" || target == "" {
		return false
	}
	return host == target || strings.HasSuffix(host, "."+target)
}

// ParseRecord turns one raw search result payload into a canonical RankRecord
// for the given job. When targetDomain is non-empty the organic items are
// additionally filtered client-side (Standard mode, where the remote API
// cannot pre-filter by target). Pure function; never fails.
func ParseRecord(result RawResult, job KeywordJob, targetDomain string) RankRecord {
	record := RankRecord{
		Keyword:      job.Keyword,
		LanguageCode: job.LanguageCode,
		SEDomain:     result.SEDomain,
		LocationName: result.LocationName,
		Device:       job.Device,
		OS:           job.OS,
		Depth:        job.Depth,
	}
	if record.Keyword == "" {
		record.Keyword = result.ResultKeyword()
	}

	organic := make([]RawSerpItem, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Type == organicType {
			organic = append(organic, item)
		}
	}
	if len(organic) == 0 {
		record.Note = "No organic results found"
		return record
	}

	items := organic
	if targetDomain != "" {
		items = items[:0:0]
		for _, item := range organic {
			if MatchesDomain(item.URL, targetDomain) {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			record.Note = fmt.Sprintf("Not found in top %d", job.Depth)
			return record
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		gi, gj := rankOrMax(items[i].RankGroup), rankOrMax(items[j].RankGroup)
		if gi != gj {
			return gi < gj
		}
		return rankOrMax(items[i].RankAbsolute) < rankOrMax(items[j].RankAbsolute)
	})
	best := items[0]
	if best.RankGroup == nil || best.RankAbsolute == nil {
		record.Note = "Result missing rank data"
		return record
	}

	record.Found = true
	record.OrganicRank = best.RankGroup
	record.AbsoluteRank = best.RankAbsolute
	record.Type = best.Type
	record.URL = best.URL
	record.Title = best.Title
	return record
}
