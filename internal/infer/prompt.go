// Package infer generates structured-unit predictions for a gold dataset
// by prompting an LLM and materializing its parsed output.
package infer

import (
	"fmt"
	"strings"

	"github.com/AlexJJJChen/NormBench/internal/dataset"
)

// SystemPrompt frames the extraction task. The contract the evaluator
// depends on is stated last: the answer must be a JSON array wrapped in a
// <final> block, with every anchor and leaf text copied verbatim from the
// provision.
const SystemPrompt = `你是一名法律条文结构化标注专家。你的任务是把一条中国法律条文解析为结构化的规范单元(structured units)。

每个规范单元包含:
- unit_id: 单元编号,形如 U1、U2
- unit_text: 该单元对应的条文原文片段
- branches: 规范分支列表,每个分支包含:
  - branch_id: 形如 B1、B2
  - anchor: {"text": 条文中定位该分支的原文短语, "occurrence": 第几次出现}
  - norm_kind: OBLIGATION / PROHIBITION / PERMISSION / RIGHT / LIABILITY / SANCTION / DEFINITION / PROCEDURE / OTHER 之一
  - conditions: 条件树。内部节点为 {"op": "AND"|"OR", "items": [...]},叶子为
    {"leaf_id": "B1.C1", "tag": 标签, "text": 条文原文片段}。
    标签限于: 主体 / 行为 / 对象 / 前置条件 / 方式 / 目的 / 情节 / 数额 / 结果 / 程序 / 引用 / 排除
  - effects: [{"effect_id": "B1.E1", "effect_text": 法律后果原文片段}]

硬性要求:
1. anchor.text、叶子 text、effect_text 必须逐字摘自条文原文,不得改写。
2. 条件树中同一运算符不得直接嵌套。
3. 输出只包含上述字段,不要添加其他键。

先逐步分析条文,然后把最终 JSON 数组放在 <final> 和 </final> 之间输出。`

// BuildPrompt renders the user message for one provision
func BuildPrompt(prov dataset.Provision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "规则编号: %s\n", prov.RuleID)
	if prov.LawTitle != "" {
		fmt.Fprintf(&b, "法律名称: %s\n", prov.LawTitle)
	}
	if prov.ArticleNumber != "" {
		fmt.Fprintf(&b, "条文编号: %s\n", prov.ArticleNumber)
	}
	fmt.Fprintf(&b, "条文原文:\n%s\n", prov.RuleText)
	if prov.FullArticleText != "" && prov.FullArticleText != prov.RuleText {
		fmt.Fprintf(&b, "\n完整条文上下文:\n%s\n", prov.FullArticleText)
	}
	b.WriteString("\n请解析上述条文,并将最终 JSON 数组放在 <final></final> 中。")
	return b.String()
}
