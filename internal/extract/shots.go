package extract

import "fmt"

// Shots is the detail-page deck in section order.
var Shots = []string{
	"封面图 (The Hero Shot)",
	"购物车预览图 (Cart Preview)",
	"量大管饱图 (Abundance Shot)",
	"尺寸对比图 (Size Comparison)",
	"场景对比图 (Scenario Comparison)",
	"沉浸式场景图 (Immersive Scenario)",
	"痛点/解决方案图 (Pain/Solution)",
	"核心卖点可视化 (USP Visualization)",
	"特写/细节图 (Close-up/Texture)",
	`规格/多合一展示 (The "What you get")`,
	"使用步骤/傻瓜式指南 (The How-to)",
}

// ShotKind returns the deck label of a 1-based section number.
func ShotKind(section int) string {
	if section >= 1 && section <= len(Shots) {
		return Shots[section-1]
	}
	return fmt.Sprintf("Image %d", section)
}
