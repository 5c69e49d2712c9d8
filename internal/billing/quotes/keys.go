package quotes

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

func entityKey(companyID, id int64) string {
	return fmt.Sprintf("billing:quote:%d:%d", companyID, id)
}

func statsKey(companyID int64) string {
	return fmt.Sprintf("billing:quotes:stats:%d", companyID)
}

func listPattern(companyID int64) string {
	return fmt.Sprintf("billing:quotes:list:%d:*", companyID)
}

func listKey(companyID int64, req ListQuotesRequest) string {
	h := sha1.New()
	fmt.Fprintf(h, "p=%d|l=%d|q=%s", req.Page, req.Limit, req.Search)
	if req.Status != nil {
		fmt.Fprintf(h, "|s=%s", *req.Status)
	}
	if req.CustomerID != nil {
		fmt.Fprintf(h, "|c=%d", *req.CustomerID)
	}
	if req.DateFrom != nil {
		fmt.Fprintf(h, "|from=%s", req.DateFrom.Format("2006-01-02"))
	}
	if req.DateTo != nil {
		fmt.Fprintf(h, "|to=%s", req.DateTo.Format("2006-01-02"))
	}
	return fmt.Sprintf("billing:quotes:list:%d:%s", companyID, hex.EncodeToString(h.Sum(nil))[:16])
}
