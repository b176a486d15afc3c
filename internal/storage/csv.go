package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rankscope/rankscope/internal/serp"
)

// csvHeader is the fixed export column set. Order is part of the format.
var csvHeader = []string{
	"keyword",
	"found",
	"organic_rank",
	"absolute_rank",
	"type",
	"url",
	"title",
	"language_code",
	"se_domain",
	"location_name",
	"device",
	"os",
	"depth",
	"note",
}

// WriteCSV renders records as CSV with the fixed column set. Nil ranks are
// written as empty cells.
func WriteCSV(w io.Writer, records []serp.RankRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Keyword,
			strconv.FormatBool(rec.Found),
			rankCell(rec.OrganicRank),
			rankCell(rec.AbsoluteRank),
			rec.Type,
			rec.URL,
			rec.Title,
			rec.LanguageCode,
			rec.SEDomain,
			rec.LocationName,
			string(rec.Device),
			rec.OS,
			strconv.Itoa(rec.Depth),
			rec.Note,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func rankCell(rank *int) string {
	if rank == nil {
		return ""
	}
	return strconv.Itoa(*rank)
}
