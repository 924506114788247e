// Package pools builds the CRM, website and data-provider identity pools
// with exact, index-driven overlaps between them.
package pools

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/angelmondragon/symmetri/internal/datagen/config"
	"github.com/angelmondragon/symmetri/internal/datagen/sampling"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

// Stream is the random stream reserved for pool generation.
const Stream uint64 = 0

// countEpsilon absorbs float error in total*pct before truncation so that
// 0.29*100 yields 29.
const countEpsilon = 1e-9

// Pools holds the identity lists consumed by the table generators.
type Pools struct {
	CRM                     []string
	Website                 []string
	DataProvider            []string
	CRMWithTransactions     []string
	WebsiteWithTransactions []string
}

// Counts are the derived sizes that drive the overlaps.
type Counts struct {
	WebsiteInCRM      int
	DataProviderInCRM int
	DataProviderInWeb int
	CRMWithTx         int
	WebsiteWithTx     int
	// ThreeWay is the number of data-provider identities that must come
	// from the website/CRM overlap because the CRM identities outside it
	// cannot cover DataProviderInCRM.
	ThreeWay int
}

// WebsiteOnlyDraw is how many data-provider identities are copied from
// website identities outside CRM. Three-way identities already count
// towards the website/data-provider overlap.
func (c Counts) WebsiteOnlyDraw() int {
	return max(0, c.DataProviderInWeb-c.ThreeWay)
}

// Overlaps reports pairwise intersection sizes of the final pools.
type Overlaps struct {
	CRMWebsite          int
	CRMDataProvider     int
	WebsiteDataProvider int
	// DataProviderWebsiteOnly counts data-provider identities found in the
	// website pool but not in CRM.
	DataProviderWebsiteOnly int
	CRMWebsiteDataProvider  int
}

// Manager generates pools and logs their shape.
type Manager struct {
	logg *logger.Logger
}

func NewManager(logg *logger.Logger) *Manager {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Manager{logg: logg}
}

// CountOf is the truncated share of total.
func CountOf(total int, pct float64) int {
	return int(math.Floor(float64(total)*pct + countEpsilon))
}

// DeriveCounts computes the overlap and subset sizes for uc and rejects any
// that cannot be satisfied by its source pool.
func DeriveCounts(uc config.UserCounts) (Counts, error) {
	c := Counts{
		WebsiteInCRM:      CountOf(uc.TotalWebsiteEventsUsers, uc.WebsiteUsersInCRMPercentage),
		DataProviderInCRM: CountOf(uc.TotalDataProviderUsers, uc.DataProviderUsersInCRMPercentage),
		DataProviderInWeb: CountOf(uc.TotalDataProviderUsers, uc.DataProviderUsersInWebsitePercentage),
		CRMWithTx:         CountOf(uc.TotalCRMUsers, uc.CRMUsersWithTransactionsPercentage),
		WebsiteWithTx:     CountOf(uc.TotalWebsiteEventsUsers, uc.WebsiteUsersWithTransactionsPercentage),
	}
	c.ThreeWay = max(0, c.WebsiteInCRM+c.DataProviderInCRM-uc.TotalCRMUsers)

	switch {
	case uc.TotalCRMUsers < 0 || uc.TotalWebsiteEventsUsers < 0 || uc.TotalDataProviderUsers < 0:
		return c, pkgerrors.New(pkgerrors.CodeValidation, "pool sizes must not be negative")
	case c.WebsiteInCRM > uc.TotalCRMUsers:
		return c, pkgerrors.Newf(pkgerrors.CodeValidation, "website/crm overlap %d exceeds crm pool %d", c.WebsiteInCRM, uc.TotalCRMUsers)
	case c.WebsiteInCRM > uc.TotalWebsiteEventsUsers:
		return c, pkgerrors.Newf(pkgerrors.CodeValidation, "website/crm overlap %d exceeds website pool %d", c.WebsiteInCRM, uc.TotalWebsiteEventsUsers)
	case c.DataProviderInCRM > uc.TotalCRMUsers:
		return c, pkgerrors.Newf(pkgerrors.CodeValidation, "data provider/crm overlap %d exceeds crm pool %d", c.DataProviderInCRM, uc.TotalCRMUsers)
	case c.DataProviderInCRM+c.DataProviderInWeb > uc.TotalDataProviderUsers:
		return c, pkgerrors.Newf(pkgerrors.CodeValidation, "data provider overlaps %d+%d exceed data provider pool %d", c.DataProviderInCRM, c.DataProviderInWeb, uc.TotalDataProviderUsers)
	case c.DataProviderInWeb > uc.TotalWebsiteEventsUsers-c.WebsiteInCRM:
		return c, pkgerrors.Newf(pkgerrors.CodeValidation, "data provider/website overlap %d exceeds %d website identities outside crm", c.DataProviderInWeb, uc.TotalWebsiteEventsUsers-c.WebsiteInCRM)
	case c.CRMWithTx > uc.TotalCRMUsers || c.WebsiteWithTx > uc.TotalWebsiteEventsUsers:
		return c, pkgerrors.New(pkgerrors.CodeValidation, "transaction subset exceeds its pool")
	}
	return c, nil
}

// Generate builds the pools for uc from seed.
func (m *Manager) Generate(ctx context.Context, uc config.UserCounts, seed uint64) (*Pools, error) {
	counts, err := DeriveCounts(uc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := sampling.NewRand(seed, Stream)
	total := uc.TotalCRMUsers + uc.TotalWebsiteEventsUsers + uc.TotalDataProviderUsers
	combined := sampling.IdentityPool(r, total)
	r.Shuffle(len(combined), func(i, j int) { combined[i], combined[j] = combined[j], combined[i] })

	crmEnd := uc.TotalCRMUsers
	webEnd := crmEnd + uc.TotalWebsiteEventsUsers
	p := &Pools{
		CRM:          combined[:crmEnd:crmEnd],
		Website:      append([]string(nil), combined[crmEnd:webEnd]...),
		DataProvider: append([]string(nil), combined[webEnd:]...),
	}

	if err := overwriteFrom(r, p.Website[:counts.WebsiteInCRM], p.CRM); err != nil {
		return nil, err
	}
	// CRM identities outside the website overlap are used first so that
	// the only three-way identities are the ones the counts force.
	crmOnly, crmShared := partition(p.CRM, p.Website[:counts.WebsiteInCRM])
	dpCRM := p.DataProvider[:counts.DataProviderInCRM]
	fromOnly := counts.DataProviderInCRM - counts.ThreeWay
	if err := overwriteFrom(r, dpCRM[:fromOnly], crmOnly); err != nil {
		return nil, err
	}
	if err := overwriteFrom(r, dpCRM[fromOnly:], crmShared); err != nil {
		return nil, err
	}
	if counts.ThreeWay > counts.DataProviderInWeb {
		m.logg.Warn(m.logg.WithFields(ctx, map[string]any{
			"required_three_way": counts.ThreeWay,
			"target_website_dp":  counts.DataProviderInWeb,
		}), "datagen.pools.website_dp_overlap_exceeded")
	}

	// Website identities past WebsiteInCRM are the ones not copied from CRM
	// in the final ordering.
	webOnly := p.Website[counts.WebsiteInCRM:]
	dpWeb := p.DataProvider[counts.DataProviderInCRM : counts.DataProviderInCRM+counts.WebsiteOnlyDraw()]
	if err := overwriteFrom(r, dpWeb, webOnly); err != nil {
		return nil, err
	}

	if p.CRMWithTransactions, err = sampling.Sample(r, p.CRM, counts.CRMWithTx); err != nil {
		return nil, err
	}
	if p.WebsiteWithTransactions, err = sampling.Sample(r, p.Website, counts.WebsiteWithTx); err != nil {
		return nil, err
	}

	ov := p.Overlaps()
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"crm_users":               len(p.CRM),
		"website_users":           len(p.Website),
		"data_provider_users":     len(p.DataProvider),
		"crm_with_transactions":   len(p.CRMWithTransactions),
		"web_with_transactions":   len(p.WebsiteWithTransactions),
		"overlap_crm_website":     ov.CRMWebsite,
		"overlap_crm_dp":          ov.CRMDataProvider,
		"overlap_website_dp":      ov.WebsiteDataProvider,
		"overlap_website_only_dp": ov.DataProviderWebsiteOnly,
		"overlap_all":             ov.CRMWebsiteDataProvider,
	}), "datagen.pools.generated")

	return p, nil
}

// partition splits ids into those absent from and present in exclude,
// keeping the order of ids.
func partition(ids, exclude []string) (outside, inside []string) {
	set := toSet(exclude)
	outside = make([]string, 0, max(0, len(ids)-len(set)))
	inside = make([]string, 0, len(set))
	for _, id := range ids {
		if _, ok := set[id]; ok {
			inside = append(inside, id)
		} else {
			outside = append(outside, id)
		}
	}
	return outside, inside
}

func overwriteFrom(r *rand.Rand, dst, src []string) error {
	picked, err := sampling.Sample(r, src, len(dst))
	if err != nil {
		return err
	}
	copy(dst, picked)
	return nil
}

// Overlaps computes intersection sizes over the current pools.
func (p *Pools) Overlaps() Overlaps {
	crm := toSet(p.CRM)
	web := toSet(p.Website)
	dp := toSet(p.DataProvider)

	var out Overlaps
	out.CRMWebsite = intersect(crm, web)
	out.CRMDataProvider = intersect(crm, dp)
	out.WebsiteDataProvider = intersect(web, dp)
	for id := range dp {
		_, inWeb := web[id]
		_, inCRM := crm[id]
		if inWeb && !inCRM {
			out.DataProviderWebsiteOnly++
		}
		if inWeb && inCRM {
			out.CRMWebsiteDataProvider++
		}
	}
	return out
}

// TransactionUsers is the union of both transaction subsets in first-seen
// order, CRM first.
func (p *Pools) TransactionUsers() []string {
	seen := make(map[string]struct{}, len(p.CRMWithTransactions)+len(p.WebsiteWithTransactions))
	out := make([]string, 0, len(p.CRMWithTransactions)+len(p.WebsiteWithTransactions))
	for _, list := range [][]string{p.CRMWithTransactions, p.WebsiteWithTransactions} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func intersect(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for id := range a {
		if _, ok := b[id]; ok {
			n++
		}
	}
	return n
}
