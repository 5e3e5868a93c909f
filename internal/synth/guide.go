package synth

import (
	"path/filepath"
	"strings"

	"github.com/hyperjump/curator/internal/models"
)

// GuideItemName is the item_name of the built-in search guide.
const GuideItemName = "使用指南"

// GuideText is an operator-supplied guide file's extracted text.
type GuideText struct {
	Source  string
	Content string
}

var builtinGuide = strings.Join([]string{
	"【检索使用指南】",
	"",
	"本系统收录展览作品的基本信息、详细描述、设计理念与技术说明，可用自然语言提问。",
	"",
	"1. 按技术搜索：输入所用技术或工艺，例如 磁悬浮技术、虚幻引擎5、射频识别。",
	"2. 按主题搜索：输入作品关注的主题，例如 传统文化、环境保护、儿童心理。",
	"3. 按理念搜索：输入设计理念或表达手法，例如 场景驱动、多模态交互、视觉叙事。",
	"4. 按人员搜索：输入设计作者或指导老师的姓名。",
	"5. 按展区搜索：输入展区名称，例如 A区，查看该展区的全部作品。",
	"",
	"提问越具体，结果越准确；结果按相关度排序并附有匹配说明。",
}, "\n")

// Guide returns the built-in search guide followed by one document per non-empty guide text.
func Guide(extra ...GuideText) []*models.Document {
	docs := []*models.Document{guideDoc(GuideItemName, SystemSource, builtinGuide)}
	for _, g := range extra {
		content := strings.TrimSpace(g.Content)
		if content == "" {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(g.Source), filepath.Ext(g.Source))
		docs = append(docs, guideDoc(name, g.Source, content))
	}
	return docs
}

func guideDoc(name, source, content string) *models.Document {
	return &models.Document{
		Type:    models.DocUserGuide,
		Content: content,
		Metadata: models.Metadata{
			models.MetaType:     string(models.DocUserGuide),
			models.MetaItemName: name,
			models.MetaCategory: "",
			models.MetaZone:     "",
			models.MetaSource:   source,
		},
	}
}
