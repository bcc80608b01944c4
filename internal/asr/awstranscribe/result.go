package awstranscribe

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tiroq/memoscribe/internal/asr"
)

// jobResult is the JSON document a Transcribe job writes to S3.
type jobResult struct {
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
		Items []item `json:"items"`
	} `json:"results"`
	Status string `json:"status"`
}

type item struct {
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	Type         string `json:"type"`
	Alternatives []struct {
		Content string `json:"content"`
	} `json:"alternatives"`
}

func (it item) content() string {
	if len(it.Alternatives) == 0 {
		return ""
	}
	return it.Alternatives[0].Content
}

// parseResult converts a job result into a transcript. Items are grouped
// into one segment per sentence, closed by terminal punctuation.
func parseResult(r io.Reader) (*asr.Transcript, error) {
	var res jobResult
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode job result: %w", err)
	}

	t := &asr.Transcript{Backend: Name}
	if len(res.Results.Transcripts) > 0 {
		t.Text = strings.TrimSpace(res.Results.Transcripts[0].Transcript)
	}

	var (
		cur   strings.Builder
		seg   asr.Segment
		inSeg bool
	)
	flush := func() {
		if inSeg && cur.Len() > 0 {
			seg.Text = cur.String()
			t.Segments = append(t.Segments, seg)
		}
		cur.Reset()
		inSeg = false
	}
	for _, it := range res.Results.Items {
		word := it.content()
		switch it.Type {
		case "pronunciation":
			start, err := parseSeconds(it.StartTime)
			if err != nil {
				return nil, err
			}
			end, err := parseSeconds(it.EndTime)
			if err != nil {
				return nil, err
			}
			if !inSeg {
				seg = asr.Segment{Start: start}
				inSeg = true
			} else {
				cur.WriteByte(' ')
			}
			cur.WriteString(word)
			seg.End = end
		case "punctuation":
			if !inSeg {
				continue
			}
			cur.WriteString(word)
			if strings.ContainsAny(word, ".?!") {
				flush()
			}
		}
	}
	flush()
	return t, nil
}

// parseSeconds reads the decimal-seconds strings Transcribe emits.
func parseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad item time %q: %w", s, err)
	}
	return asr.SecondsToDuration(f), nil
}
