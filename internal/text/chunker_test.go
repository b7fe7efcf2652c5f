package text

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitMarkdown(t *testing.T) {
	t.Run("Short Section Kept Whole", func(t *testing.T) {
		text := "## 交通\n\n北京首都国际机场是中国最繁忙的机场之一。"
		chunks := SplitMarkdown(text, 100, 0)
		assert.Equal(t, []string{text}, chunks)
	})

	t.Run("Headers Split", func(t *testing.T) {
		text := "# 杭州\n西湖是杭州最著名的景点。\n## 美食\n西湖醋鱼和龙井虾仁值得一试。"
		chunks := SplitMarkdown(text, 100, 0)
		assert.Len(t, chunks, 2)
		assert.Contains(t, chunks[0], "西湖是杭州")
		assert.Contains(t, chunks[1], "龙井虾仁")
	})

	t.Run("Paragraphs Packed Under Limit", func(t *testing.T) {
		para := strings.Repeat("好", 18) + "。"
		text := para + "\n\n" + para + "\n\n" + para
		chunks := SplitMarkdown(text, 45, 0)
		assert.Len(t, chunks, 2)
		assert.Equal(t, para+"\n\n"+para, chunks[0])
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 45)
		}
	})

	t.Run("Long Line Cut Into Overlapping Windows", func(t *testing.T) {
		line := strings.Repeat("山水甲天下，", 20) // 120 runes
		chunks := SplitMarkdown(line, 50, 10)
		assert.Len(t, chunks, 3)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 50)
		}
		first := []rune(chunks[0])
		second := []rune(chunks[1])
		assert.Equal(t, string(first[40:]), string(second[:10]))
	})

	t.Run("Noise Dropped", func(t *testing.T) {
		text := "# 概况\n\n## 住宿\n\n市中心有很多经济型酒店，价格合理。"
		chunks := SplitMarkdown(text, 100, 0)
		assert.Equal(t, []string{"## 住宿\n\n市中心有很多经济型酒店，价格合理。"}, chunks)
	})

	t.Run("Invalid Overlap Ignored", func(t *testing.T) {
		chunks := SplitMarkdown(strings.Repeat("长", 30)+"。", 10, 10)
		assert.Len(t, chunks, 4)
	})
}

func TestIsNoiseChunk(t *testing.T) {
	assert.True(t, IsNoiseChunk(""))
	assert.True(t, IsNoiseChunk("  "))
	assert.True(t, IsNoiseChunk("## 购物"))
	assert.True(t, IsNoiseChunk("[首页](/)\n[目的地](/d)\n[攻略](/g)\n[关于](/a)"))
	assert.True(t, IsNoiseChunk("本页内容以CC BY-SA 3.0授权。"))

	assert.False(t, IsNoiseChunk("故宫每周一闭馆，请提前在官网预约门票。"))
	assert.False(t, IsNoiseChunk("更多信息见[官网](https://example.com)。\n\n门票六十元。\n\n建议早上前往。"))
}

func TestCleanMarkdownNoise(t *testing.T) {
	t.Run("Strips Edit Links", func(t *testing.T) {
		out := CleanMarkdownNoise("## 交通 [编辑](https://zh.wikivoyage.org/edit)\n地铁很方便。")
		assert.NotContains(t, out, "编辑")
		assert.Contains(t, out, "地铁很方便")
	})

	t.Run("Strips Image Lines", func(t *testing.T) {
		out := CleanMarkdownNoise("长城\n![长城](wall.jpg)\n值得一去。")
		assert.NotContains(t, out, "wall.jpg")
		assert.Contains(t, out, "值得一去")
	})

	t.Run("Preserves Normal Content", func(t *testing.T) {
		in := "# 成都\n\n成都以火锅和熊猫闻名。"
		assert.Equal(t, in, CleanMarkdownNoise(in))
	})
}
