package pipeline

import (
	"fmt"
	"sort"

	"github.com/yourorg/shotdeck/pkg/types"
)

// Generation modes.
const (
	ModeCover   = "cover"
	ModePreview = "preview"
	ModeTop     = "top"
	ModeAdapt   = "adapt"
)

// Modes lists every supported mode, sorted.
func Modes() []string {
	out := make([]string, 0, len(instructions)+1)
	for m := range instructions {
		out = append(out, m)
	}
	out = append(out, ModeAdapt)
	sort.Strings(out)
	return out
}

// ValidMode reports whether mode is supported.
func ValidMode(mode string) bool {
	_, ok := instructions[mode]
	return ok || mode == ModeAdapt
}

// structured reports whether mode extracts fenced JSON records.
func structured(mode string) bool {
	return mode == ModeCover || mode == ModePreview
}

var instructions = map[string]string{
	ModeCover: `Generate an image based on this prompt. Use the reference image as the product reference, maintain the product category but apply the creative style described.

%s

Important: Keep the product recognizable as the same category but apply the creative transformation described above. The reference image shows the actual product.`,

	ModePreview: `Generate a realistic product photo based on this prompt. The product MUST look EXACTLY like the reference image - same shape, same details, same accessories, same colors.

%s

CRITICAL: The product must be identical to the reference image. Only the lighting, angle, and environment can change. Do NOT modify the product itself in any way.`,

	ModeTop: `Generate an e-commerce product image based on this natural language prompt. Use the reference image as the product reference.

%s

IMPORTANT RULES:
1. Keep the product recognizable - same category and key features as the reference image.
2. For SIZE/DIMENSION shots: Maintain TRUE TO LIFE proportions. Do NOT exaggerate size. Render dimension text labels clearly and accurately.
3. Apply the creative styling, lighting, and composition described in the prompt.
4. This is for e-commerce - images should be professional, high-quality, and conversion-focused.
5. Use SQUARE 1:1 aspect ratio. Center the subject with breathing room on all sides.
6. If dimension labels are requested, render the text clearly and legibly.`,
}

// adaptInstruction recolours the target image (first reference) with the
// palette of the product image (second reference).
const adaptInstruction = `生成一张新图片，要求如下：

## 核心任务
复制第一张图（目标图）的所有内容，但把颜色换成第二张图（产品图）的颜色。

## 严格规则

### 必须100%保持不变（全部来自目标图）：
- 所有物体的位置、角度、形状、细节
- 整体构图、光影、视角
- 背景和所有装饰元素的布局

### 只从产品图提取颜色，忽略其他一切：
- 只提取产品图中产品的主色调
- 忽略产品图的角度、光线、构图、背景等所有其他信息
- 产品图仅作为"色卡"使用

### 颜色应用：
- 将目标图中所有元素的颜色统一换成产品图的主色调同色系

## 输出要求
生成的图片应该是目标图的"换色版本"——除了颜色不同，其他一切都与目标图完全相同。正方形图片，1:1比例。`

// Instruction returns the renderer of the text sent with each prompt of mode.
func Instruction(mode string) func(types.PromptSpec) string {
	if mode == ModeAdapt {
		return func(types.PromptSpec) string { return adaptInstruction }
	}
	tmpl, ok := instructions[mode]
	if !ok {
		tmpl = instructions[ModeCover]
	}
	return func(p types.PromptSpec) string { return fmt.Sprintf(tmpl, p.Body) }
}
