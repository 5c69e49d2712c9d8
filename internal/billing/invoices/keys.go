package invoices

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
)

func entityKey(companyID, id int64) string {
	return fmt.Sprintf("billing:invoice:%d:%d", companyID, id)
}

func statsKey(companyID int64) string {
	return fmt.Sprintf("billing:invoices:stats:%d", companyID)
}

func listPattern(companyID int64) string {
	return fmt.Sprintf("billing:invoices:list:%d:*", companyID)
}

// listKey hashes the normalised filter so every page/filter combination gets
// its own entry under the company list prefix.
func listKey(companyID int64, req ListInvoicesRequest) string {
	h := sha1.New()
	fmt.Fprintf(h, "p=%d|l=%d|q=%s", req.Page, req.Limit, req.Search)
	if req.Status != nil {
		fmt.Fprintf(h, "|s=%s", *req.Status)
	}
	if req.PaymentStatus != nil {
		fmt.Fprintf(h, "|ps=%s", *req.PaymentStatus)
	}
	if req.CustomerID != nil {
		fmt.Fprintf(h, "|c=%s", strconv.FormatInt(*req.CustomerID, 10))
	}
	if req.DateFrom != nil {
		fmt.Fprintf(h, "|from=%s", req.DateFrom.Format("2006-01-02"))
	}
	if req.DateTo != nil {
		fmt.Fprintf(h, "|to=%s", req.DateTo.Format("2006-01-02"))
	}
	return fmt.Sprintf("billing:invoices:list:%d:%s", companyID, hex.EncodeToString(h.Sum(nil))[:16])
}
