package votes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/maplecivic/hansardflow/internal/store"
)

// voteListResponse is the openparliament.ca /votes/ listing.
type voteListResponse struct {
	Objects []struct {
		URL string `json:"url"`
	} `json:"objects"`
}

// voteDetail is one openparliament.ca vote resource.
type voteDetail struct {
	Description struct {
		EN string `json:"en"`
		FR string `json:"fr"`
	} `json:"description"`
	BillURL     string `json:"bill_url"`
	YeaTotal    int    `json:"yea_total"`
	NayTotal    int    `json:"nay_total"`
	PairedTotal int    `json:"paired_total"`
	Result      string `json:"result"`
}

// extractFederal lists the divisions held on the sitting date and fetches
// each one's detail.
func (e *Extractor) extractFederal(ctx context.Context, debate *store.Debate) []store.Vote {
	date := debate.Date.Format("2006-01-02")
	listURL := fmt.Sprintf("%s/votes/?date=%s&format=json", e.openParliamentBase, date)

	var list voteListResponse
	if err := e.getJSON(ctx, listURL, &list); err != nil {
		e.log.Warn("failed to fetch federal votes", "date", date, "error", err)
		return nil
	}

	var result []store.Vote
	for _, obj := range list.Objects {
		detailURL := fmt.Sprintf("%s%s?format=json", e.openParliamentBase, obj.URL)
		var detail voteDetail
		if err := e.getJSON(ctx, detailURL, &detail); err != nil {
			e.log.Warn("failed to fetch vote detail", "vote", obj.URL, "error", err)
			continue
		}

		vote := store.Vote{
			DebateID:   debate.ID,
			MotionText: detail.Description.EN,
			BillNumber: billFromURL(detail.BillURL),
			YeaCount:   detail.YeaTotal,
			NayCount:   detail.NayTotal,
			Result:     "defeated",
			ExternalID: obj.URL,
			Metadata: map[string]any{
				"paired": detail.PairedTotal,
			},
		}
		if detail.Result == "Agreed to" {
			vote.Result = "passed"
		}
		if detail.Description.FR != "" {
			vote.Metadata["motion_text_fr"] = detail.Description.FR
		}
		result = append(result, vote)
	}

	e.log.Info("extracted federal votes", "date", date, "votes", len(result))
	return result
}

// billFromURL pulls the bill number out of an openparliament bill URL like
// /bills/45-1/C-230/.
func billFromURL(billURL string) string {
	if m := billURLRe.FindStringSubmatch(billURL); m != nil {
		return m[1]
	}
	return ""
}

// getJSON fetches a URL and decodes the JSON body into v.
func (e *Extractor) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
