package dsb

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

// menuItem is one node of the content menu. The same shape is used at every
// level; Root is only set on the entry that anchors the plan list.
type menuItem struct {
	ID      string     `json:"Id"`
	Date    string     `json:"Date"`
	Title   string     `json:"Title"`
	Detail  string     `json:"Detail"`
	ConType int        `json:"ConType"`
	Root    *menuItem  `json:"Root"`
	Childs  []menuItem `json:"Childs"`
}

// collectPlanRefs descends menu -> first child -> root -> children and returns
// every HTML document linked below the root. Any missing level is an
// incompatible response.
func collectPlanRefs(items []menuItem) ([]model.PlanRef, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: response has no menu items", model.ErrIncompatiblePlan)
	}
	if len(items[0].Childs) == 0 {
		return nil, fmt.Errorf("%w: menu %q has no children", model.ErrIncompatiblePlan, items[0].Title)
	}

	root := items[0].Childs[0].Root
	if root == nil || len(root.Childs) == 0 {
		return nil, fmt.Errorf("%w: plan menu has no root entries", model.ErrIncompatiblePlan)
	}

	var refs []model.PlanRef
	for _, page := range root.Childs {
		for _, doc := range page.Childs {
			if strings.TrimSpace(doc.Detail) == "" {
				continue
			}
			if !isHTMLDocument(doc.Detail) {
				slog.Debug("skipping non-html plan document", "title", page.Title, "detail", doc.Detail)
				continue
			}

			title := doc.Title
			if title == "" {
				title = page.Title
			}

			refs = append(refs, model.PlanRef{
				Title:     title,
				URL:       doc.Detail,
				Published: page.Date,
			})
		}
	}

	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: plan menu lists no documents", model.ErrIncompatiblePlan)
	}

	return refs, nil
}

// isHTMLDocument accepts .htm/.html locators and extensionless paths; images
// and PDFs published alongside the plans are not parseable.
func isHTMLDocument(locator string) bool {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return false
	}

	switch strings.ToLower(path.Ext(u.Path)) {
	case ".htm", ".html", "":
		return true
	default:
		return false
	}
}
