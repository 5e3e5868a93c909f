package synth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/curator/internal/models"
)

// SummaryItemName is the item_name carried by the system summary.
const SummaryItemName = "展览概览"

// SystemSource is the source recorded on documents not derived from a file.
const SystemSource = "system"

// Summary builds the system_summary document describing the item documents in
// docs. Documents of other kinds are ignored. It returns nil when docs holds no items.
func Summary(docs []*models.Document) *models.Document {
	type category struct {
		name  string
		items []string
		seen  map[string]bool
	}
	var (
		order     []*category
		byName    = make(map[string]*category)
		zones     []string
		seenZone  = make(map[string]bool)
		itemCount int
	)
	for _, d := range docs {
		if d.Type == models.DocSystemSummary || d.Type == models.DocUserGuide {
			continue
		}
		catName := d.Metadata.String(models.MetaCategory)
		c, ok := byName[catName]
		if !ok {
			c = &category{name: catName, seen: make(map[string]bool)}
			byName[catName] = c
			order = append(order, c)
		}
		if name := d.ItemName(); name != "" && !c.seen[name] {
			c.seen[name] = true
			c.items = append(c.items, name)
			itemCount++
		}
		if z := d.Metadata.String(models.MetaZone); z != "" && !seenZone[z] {
			seenZone[z] = true
			zones = append(zones, z)
		}
	}
	if itemCount == 0 {
		return nil
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].name < order[j].name })
	sort.Strings(zones)

	var b strings.Builder
	b.WriteString("【展览系统概览】\n\n")
	fmt.Fprintf(&b, "作品总数：%d\n", itemCount)
	counts := make([]string, 0, len(order))
	for _, c := range order {
		if len(c.items) > 0 {
			counts = append(counts, fmt.Sprintf("%s（%d件）", displayCategory(c.name), len(c.items)))
		}
	}
	fmt.Fprintf(&b, "作品类别：%s\n", strings.Join(counts, "、"))
	if len(zones) > 0 {
		fmt.Fprintf(&b, "展区分布：%s\n", strings.Join(zones, "、"))
	}
	b.WriteString("\n【各类别作品】\n")
	for _, c := range order {
		if len(c.items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s：%s\n", displayCategory(c.name), strings.Join(c.items, "、"))
	}

	return &models.Document{
		Type:    models.DocSystemSummary,
		Content: strings.TrimSpace(b.String()),
		Metadata: models.Metadata{
			models.MetaType:     string(models.DocSystemSummary),
			models.MetaItemName: SummaryItemName,
			models.MetaCategory: "",
			models.MetaZone:     "",
			models.MetaSource:   SystemSource,
			"total_items":       itemCount,
			"total_categories":  len(counts),
			"total_zones":       len(zones),
		},
	}
}

func displayCategory(name string) string {
	if name == "" {
		return "未分类"
	}
	return name
}
