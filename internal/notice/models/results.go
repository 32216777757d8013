package models

// PassResult summarizes one looping suspension run.
type PassResult struct {
	Processed int `json:"processed"`
	Suspended int `json:"suspended"`
	Reapplied int `json:"reapplied"`
	Released  int `json:"released"`
	Errors    int `json:"errors"`
}

// Add accumulates another result.
func (r *PassResult) Add(o PassResult) {
	r.Processed += o.Processed
	r.Suspended += o.Suspended
	r.Reapplied += o.Reapplied
	r.Released += o.Released
	r.Errors += o.Errors
}

// ResyncResult summarizes one mirror resync sweep. Superseded counts notices that
// changed again while being pushed; they stay pending for the next sweep.
type ResyncResult struct {
	Attempted  int `json:"attempted"`
	Synced     int `json:"synced"`
	Failed     int `json:"failed"`
	Superseded int `json:"superseded"`
}

// NoticeHistory is the read model returned to operators.
type NoticeHistory struct {
	Notice     *Notice            `json:"notice"`
	Ledger     []*LedgerEntry     `json:"ledger"`
	Reductions []*ReductionRecord `json:"reductions"`
	Refunds    []*RefundRecord    `json:"refunds"`
}
