package catalog

import (
	"encoding/json"
	"time"

	"github.com/launchwatch/monitor/internal/model"
)

// Sort enumerates the three listing sorts the catalog supports.
type Sort string

const (
	SortCreatedAtDesc  Sort = "createdAt:desc"
	SortLPCreatedDesc  Sort = "lpCreatedAt:desc"
	SortLaunchedAtDesc Sort = "launchedAt:desc"
)

// Page is one page of a paged listing response.
type Page struct {
	Items      []model.ProjectDescriptor
	Page       int
	PageSize   int
	PageCount  int
	TotalCount int
}

// wireProject mirrors the catalog's JSON shape for one project record;
// it is unmarshaled then converted into model.ProjectDescriptor.
type wireProject struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Symbol       string     `json:"symbol"`
	Factory      string     `json:"factory"`
	Status       string     `json:"status"`
	PreTokenPair *string    `json:"preTokenPair"`
	LPAddress    *string    `json:"lpAddress"`
	TokenAddress *string    `json:"tokenAddress"`
	CreatedAt    time.Time  `json:"createdAt"`
	LaunchedAt   *time.Time `json:"launchedAt"`
	LPCreatedAt  *time.Time `json:"lpCreatedAt"`
	MarketCapUsd *string    `json:"marketCapUsd"`
}

func (w wireProject) toDescriptor() model.ProjectDescriptor {
	return model.ProjectDescriptor{
		ID:           w.ID,
		Name:         w.Name,
		Symbol:       w.Symbol,
		Factory:      model.ParseFactoryTag(w.Factory),
		Status:       model.LifecycleStatus(w.Status),
		PreTokenPair: w.PreTokenPair,
		LPAddress:    w.LPAddress,
		TokenAddress: w.TokenAddress,
		CreatedAt:    w.CreatedAt,
		LaunchedAt:   w.LaunchedAt,
		LPCreatedAt:  w.LPCreatedAt,
		MarketCapUsd: w.MarketCapUsd,
	}
}

type wirePage struct {
	Items      []wireProject `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	PageCount  int           `json:"pageCount"`
	TotalCount int           `json:"totalCount"`
}

func (w wirePage) toPage() Page {
	items := make([]model.ProjectDescriptor, len(w.Items))
	for i, wp := range w.Items {
		items[i] = wp.toDescriptor()
	}
	return Page{
		Items:      items,
		Page:       w.Page,
		PageSize:   w.PageSize,
		PageCount:  w.PageCount,
		TotalCount: w.TotalCount,
	}
}

func decodeWirePage(data []byte) (Page, error) {
	var w wirePage
	if err := json.Unmarshal(data, &w); err != nil {
		return Page{}, err
	}
	return w.toPage(), nil
}

func decodeWireProject(data []byte) (model.ProjectDescriptor, error) {
	var w wireProject
	if err := json.Unmarshal(data, &w); err != nil {
		return model.ProjectDescriptor{}, err
	}
	return w.toDescriptor(), nil
}
