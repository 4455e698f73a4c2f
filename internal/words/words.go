package words

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pair 一组词语：普通玩家的词和内鬼的词
type Pair struct {
	Common   string `yaml:"common" json:"common"`
	Imposter string `yaml:"imposter" json:"imposter"`
}

// Supplier 词语提供者
//
// Pick 必须可以被多个房间并发调用，随机源由调用方提供。
type Supplier interface {
	Pick(r *rand.Rand) Pair
}

// List 固定词库
type List struct {
	pairs []Pair
}

// file 词库文件格式
type file struct {
	Pairs []Pair `yaml:"pairs"`
}

// NewList 创建词库
func NewList(pairs []Pair) (*List, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("词库为空")
	}

	cleaned := make([]Pair, 0, len(pairs))
	for i, p := range pairs {
		p.Common = strings.TrimSpace(p.Common)
		p.Imposter = strings.TrimSpace(p.Imposter)
		if p.Common == "" || p.Imposter == "" {
			return nil, fmt.Errorf("第%d组词语不完整", i+1)
		}
		if strings.EqualFold(p.Common, p.Imposter) {
			return nil, fmt.Errorf("第%d组词语相同: %s", i+1, p.Common)
		}
		cleaned = append(cleaned, p)
	}

	return &List{pairs: cleaned}, nil
}

// LoadFile 从YAML文件加载词库
func LoadFile(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取词库文件失败: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析词库文件失败: %w", err)
	}

	return NewList(f.Pairs)
}

// Pick 随机选择一组词语
func (l *List) Pick(r *rand.Rand) Pair {
	return l.pairs[r.Intn(len(l.pairs))]
}

// Len 词库大小
func (l *List) Len() int {
	return len(l.pairs)
}

// Default 内置词库
func Default() *List {
	return &List{pairs: builtin}
}

var builtin = []Pair{
	{Common: "Coffee", Imposter: "Tea"},
	{Common: "Cat", Imposter: "Dog"},
	{Common: "Beach", Imposter: "Desert"},
	{Common: "Guitar", Imposter: "Violin"},
	{Common: "Pizza", Imposter: "Burger"},
	{Common: "Train", Imposter: "Bus"},
	{Common: "Winter", Imposter: "Autumn"},
	{Common: "Doctor", Imposter: "Nurse"},
	{Common: "Apple", Imposter: "Pear"},
	{Common: "Football", Imposter: "Rugby"},
	{Common: "Moon", Imposter: "Sun"},
	{Common: "Library", Imposter: "Bookstore"},
	{Common: "Piano", Imposter: "Keyboard"},
	{Common: "River", Imposter: "Lake"},
	{Common: "Castle", Imposter: "Palace"},
	{Common: "Pencil", Imposter: "Pen"},
	{Common: "Hotel", Imposter: "Hostel"},
	{Common: "Butter", Imposter: "Cheese"},
	{Common: "Rocket", Imposter: "Airplane"},
	{Common: "Wolf", Imposter: "Fox"},
	{Common: "Cinema", Imposter: "Theater"},
	{Common: "Snow", Imposter: "Rain"},
	{Common: "Chess", Imposter: "Checkers"},
	{Common: "Honey", Imposter: "Syrup"},
	{Common: "Mountain", Imposter: "Hill"},
	{Common: "Umbrella", Imposter: "Raincoat"},
	{Common: "Shark", Imposter: "Dolphin"},
	{Common: "Bicycle", Imposter: "Scooter"},
	{Common: "Candle", Imposter: "Lamp"},
	{Common: "Wedding", Imposter: "Birthday"},
}
