// Package synth turns catalog records into purpose-specific text documents.
//
// Each record yields up to four documents: basic_info always, and
// detailed_info, design_concept and tech_info only when at least one of the
// fields that drive them is present. The package also builds the corpus-level
// system_summary and the user_guide documents.
package synth

import (
	"strings"

	"github.com/hyperjump/curator/internal/models"
)

// UnknownItemName is a placeholder that some catalogs use for unnamed entries.
const UnknownItemName = "未知"

const noDescription = "暂无描述"

var detailFields = []models.FieldKey{
	models.FieldMotivation,
	models.FieldInspiration,
	models.FieldPurpose,
	models.FieldProcess,
	models.FieldDifficulties,
}

// Synthesize returns the documents for rec in basic, detailed, concept, tech order.
// Records without a usable item name produce nothing.
func Synthesize(rec *models.Record) []*models.Document {
	name := strings.TrimSpace(rec.ItemName())
	if name == "" || name == UnknownItemName {
		return nil
	}
	docs := []*models.Document{basicInfo(rec, name)}
	for _, build := range []func(*models.Record, string) *models.Document{detailedInfo, designConcept, techInfo} {
		if d := build(rec, name); d != nil {
			docs = append(docs, d)
		}
	}
	return docs
}

// SynthesizeAll concatenates Synthesize over recs.
func SynthesizeAll(recs []*models.Record) []*models.Document {
	var docs []*models.Document
	for _, r := range recs {
		docs = append(docs, Synthesize(r)...)
	}
	return docs
}

func baseMetadata(rec *models.Record, name string, t models.DocType) models.Metadata {
	return models.Metadata{
		models.MetaType:      string(t),
		models.MetaItemName:  name,
		models.MetaCategory:  rec.Category,
		models.MetaZone:      rec.Zone,
		models.MetaSource:    rec.Source,
		models.MetaSheetName: rec.Sheet,
		models.MetaRow:       rec.Row,
		models.MetaItemID:    rec.Field(models.FieldSequence),
	}
}

func location(rec *models.Record) string {
	return rec.Zone + " - " + rec.Field(models.FieldSequence)
}

func basicInfo(rec *models.Record, name string) *models.Document {
	desc := rec.Field(models.FieldShortDescription)
	if desc == "" {
		desc = noDescription
	}
	var b strings.Builder
	b.WriteString("【作品基本信息】\n\n")
	line(&b, "作品名称", name)
	line(&b, "展区位置", location(rec))
	line(&b, "作品类别", rec.Category+" / "+rec.Field(models.FieldSubCategory))
	line(&b, "呈现形式", rec.Field(models.FieldDisplayForm))
	b.WriteString("\n")
	line(&b, "设计作者", rec.Field(models.FieldAuthors))
	line(&b, "指导老师", rec.Field(models.FieldInstructor))
	line(&b, "创作时间", rec.Field(models.FieldCreationTime))
	b.WriteString("\n【作品简介】\n")
	b.WriteString(desc)

	meta := baseMetadata(rec, name, models.DocBasicInfo)
	meta["sub_category"] = rec.Field(models.FieldSubCategory)
	meta["display_form"] = rec.Field(models.FieldDisplayForm)
	meta[models.MetaAuthors] = rec.Field(models.FieldAuthors)
	meta["instructor"] = rec.Field(models.FieldInstructor)
	meta["creation_time"] = rec.Field(models.FieldCreationTime)
	return &models.Document{Type: models.DocBasicInfo, Content: strings.TrimSpace(b.String()), Metadata: meta}
}

func detailedInfo(rec *models.Record, name string) *models.Document {
	var present []string
	var body strings.Builder
	for _, k := range detailFields {
		v := rec.Field(k)
		if v == "" {
			continue
		}
		present = append(present, k.Label())
		body.WriteString("\n【" + k.Label() + "】\n" + v + "\n")
	}
	if len(present) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("【作品详细描述】\n\n")
	line(&b, "作品名称", name)
	line(&b, "展区位置", location(rec))
	line(&b, "作品类别", rec.Category)
	b.WriteString(body.String())

	meta := baseMetadata(rec, name, models.DocDetailedInfo)
	meta["has_details"] = true
	meta["detail_fields"] = present
	return &models.Document{Type: models.DocDetailedInfo, Content: strings.TrimSpace(b.String()), Metadata: meta}
}

func designConcept(rec *models.Record, name string) *models.Document {
	concept := rec.Field(models.FieldDesignConcept)
	visual := rec.Field(models.FieldVisualLanguage)
	if concept == "" && visual == "" {
		return nil
	}
	var b strings.Builder
	b.WriteString("【设计理念与视觉风格】\n\n")
	line(&b, "作品名称", name)
	line(&b, "作品类别", rec.Category)
	section(&b, "设计理念", concept)
	section(&b, "视觉形式语言", visual)

	meta := baseMetadata(rec, name, models.DocDesignConcept)
	meta["has_design_concept"] = concept != ""
	meta["has_visual_language"] = visual != ""
	return &models.Document{Type: models.DocDesignConcept, Content: strings.TrimSpace(b.String()), Metadata: meta}
}

func techInfo(rec *models.Record, name string) *models.Document {
	tech := rec.Field(models.FieldTechnique)
	effect := rec.Field(models.FieldExpectedEffect)
	if tech == "" && effect == "" {
		return nil
	}
	var b strings.Builder
	b.WriteString("【技术特点与预期效果】\n\n")
	line(&b, "作品名称", name)
	line(&b, "作品类别", rec.Category)
	section(&b, "技术特点", tech)
	section(&b, "预期效果", effect)

	meta := baseMetadata(rec, name, models.DocTechInfo)
	meta["has_technique"] = tech != ""
	meta["has_expected_effect"] = effect != ""
	return &models.Document{Type: models.DocTechInfo, Content: strings.TrimSpace(b.String()), Metadata: meta}
}

func line(b *strings.Builder, label, value string) {
	b.WriteString(label + "：" + value + "\n")
}

func section(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString("\n" + label + "：\n" + value + "\n")
}
