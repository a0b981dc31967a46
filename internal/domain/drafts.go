package domain

import "fmt"

// Draft bucket names as stored in the document.
const (
	DraftRoadmap     = "roadmap"
	DraftWithdrawals = "withdrawals"
)

// Fields of the withdrawals bucket.
const (
	DraftCalcAmount = "calcAmount"
	DraftCalcIRPF   = "calcIrpf"
	DraftCalcPeople = "calcPeople"
	DraftRegJoey    = "regJoey"
	DraftRegAlex    = "regAlex"
	DraftRegRubinho = "regRubinho"
	DraftRegTax     = "regTax"

	// DraftAdditionalDeposit lives in every progress bucket.
	DraftAdditionalDeposit = "additionalDeposit"
)

// DraftBucket holds the in-progress text of one form.
type DraftBucket map[string]string

// Drafts holds uncommitted form input. It is synchronized so typing carries
// across devices.
type Drafts map[string]DraftBucket

// ProgressDraftBucket returns the bucket holding the progress form of an account.
func ProgressDraftBucket(id AccountID) string {
	return "progress" + documentSuffix[id]
}

// WithdrawalDraftField maps a partner to its field in the withdrawals bucket.
func WithdrawalDraftField(p Partner) (string, bool) {
	switch p {
	case PartnerJoey:
		return DraftRegJoey, true
	case PartnerAlex:
		return DraftRegAlex, true
	case PartnerRubinho:
		return DraftRegRubinho, true
	case PartnerTax:
		return DraftRegTax, true
	}
	return "", false
}

// RoadmapDateField is the roadmap field holding a partner's deposit date.
func RoadmapDateField(p Partner) string {
	return string(p) + "_DATE"
}

func defaultDrafts(today string) Drafts {
	d := Drafts{
		DraftRoadmap: {
			string(PartnerJoey):    "",
			string(PartnerAlex):    "",
			string(PartnerRubinho): "",
			RoadmapDateField(PartnerJoey):    today,
			RoadmapDateField(PartnerAlex):    today,
			RoadmapDateField(PartnerRubinho): today,
		},
		DraftWithdrawals: {
			DraftCalcAmount: "",
			DraftCalcIRPF:   "15",
			DraftCalcPeople: "3",
			DraftRegJoey:    "",
			DraftRegAlex:    "",
			DraftRegRubinho: "",
			DraftRegTax:     "",
		},
	}
	for _, id := range Accounts {
		d[ProgressDraftBucket(id)] = DraftBucket{DraftAdditionalDeposit: ""}
	}
	return d
}

// Get returns a draft value, or "" when unset.
func (d Drafts) Get(bucket, field string) string {
	return d[bucket][field]
}

// Set writes one draft field. Only fields of the known form schema are accepted.
func (d Drafts) Set(bucket, field, value string) error {
	schema := defaultDrafts("")
	if _, ok := schema[bucket][field]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownDraft, bucket, field)
	}
	b := d[bucket]
	if b == nil {
		b = DraftBucket{}
		d[bucket] = b
	}
	b[field] = value
	return nil
}

// Clone copies both map levels.
func (d Drafts) Clone() Drafts {
	if d == nil {
		return nil
	}
	out := make(Drafts, len(d))
	for name, b := range d {
		nb := make(DraftBucket, len(b))
		for k, v := range b {
			nb[k] = v
		}
		out[name] = nb
	}
	return out
}

// Merge lays over on top of d, one level deep: a bucket present in over only
// replaces the fields it carries. Buckets unknown to d are kept.
func (d Drafts) Merge(over Drafts) Drafts {
	out := d.Clone()
	if out == nil {
		out = Drafts{}
	}
	for name, b := range over {
		nb := out[name]
		if nb == nil {
			nb = make(DraftBucket, len(b))
			out[name] = nb
		}
		for k, v := range b {
			nb[k] = v
		}
	}
	return out
}
