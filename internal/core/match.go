package core

import (
	"cmp"
	"slices"
	"time"

	"github.com/edvin/metering/internal/model"
)

// UsageGroup is the count of matched events for one aggregate key.
type UsageGroup struct {
	TenantID   string
	CustomerID string
	ProductID  string
	UsageDate  time.Time
	Count      int64
}

// ProductEvents lists the events of a batch counted toward one product.
type ProductEvents struct {
	ProductID string
	EventIDs  []string
}

// MatchConflict records a tenant with several products matching the same
// event name. Chosen is the product the events were counted toward.
type MatchConflict struct {
	TenantID   string
	EventName  string
	ProductIDs []string
	Chosen     string
}

// BatchPlan is the outcome of matching a batch of events against the catalog.
type BatchPlan struct {
	Groups    []UsageGroup
	Counted   []ProductEvents
	Unmatched []string
	Conflicts []MatchConflict
}

// CountedEvents returns the number of events counted toward any product.
func (p BatchPlan) CountedEvents() int {
	n := 0
	for _, pe := range p.Counted {
		n += len(pe.EventIDs)
	}
	return n
}

type ruleKey struct {
	tenantID  string
	eventName string
}

type groupKey struct {
	tenantID   string
	customerID string
	productID  string
	date       time.Time
}

// UsageDate truncates an event timestamp to its UTC calendar day.
func UsageDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PlanBatch matches events to products by exact, case-sensitive
// (tenant, event name) equality and groups the matches per customer, product
// and UTC day. When several products match, the lowest product id wins.
// The result is deterministic for a given input.
func PlanBatch(rules []model.MatchRule, events []model.Event) BatchPlan {
	candidates := make(map[ruleKey][]string)
	for _, r := range rules {
		k := ruleKey{r.TenantID, r.EventNameMatch}
		candidates[k] = append(candidates[k], r.ProductID)
	}

	var plan BatchPlan
	resolved := make(map[ruleKey]string, len(candidates))
	for k, ids := range candidates {
		slices.Sort(ids)
		ids = slices.Compact(ids)
		resolved[k] = ids[0]
		if len(ids) > 1 {
			plan.Conflicts = append(plan.Conflicts, MatchConflict{
				TenantID:   k.tenantID,
				EventName:  k.eventName,
				ProductIDs: ids,
				Chosen:     ids[0],
			})
		}
	}

	counts := make(map[groupKey]int64)
	byProduct := make(map[string][]string)
	for _, e := range events {
		productID, ok := resolved[ruleKey{e.TenantID, e.EventName}]
		if !ok {
			plan.Unmatched = append(plan.Unmatched, e.ID)
			continue
		}
		counts[groupKey{e.TenantID, e.CustomerID, productID, UsageDate(e.CreatedAt)}]++
		byProduct[productID] = append(byProduct[productID], e.ID)
	}

	for k, n := range counts {
		plan.Groups = append(plan.Groups, UsageGroup{
			TenantID:   k.tenantID,
			CustomerID: k.customerID,
			ProductID:  k.productID,
			UsageDate:  k.date,
			Count:      n,
		})
	}
	slices.SortFunc(plan.Groups, func(a, b UsageGroup) int {
		return cmp.Or(
			cmp.Compare(a.TenantID, b.TenantID),
			cmp.Compare(a.CustomerID, b.CustomerID),
			cmp.Compare(a.ProductID, b.ProductID),
			a.UsageDate.Compare(b.UsageDate),
		)
	})

	for productID, ids := range byProduct {
		plan.Counted = append(plan.Counted, ProductEvents{ProductID: productID, EventIDs: ids})
	}
	slices.SortFunc(plan.Counted, func(a, b ProductEvents) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	slices.SortFunc(plan.Conflicts, func(a, b MatchConflict) int {
		return cmp.Or(cmp.Compare(a.TenantID, b.TenantID), cmp.Compare(a.EventName, b.EventName))
	})
	return plan
}
