// Package catalog содержит статический каталог контента и выбор открытий.
package catalog

import (
	"fmt"
	"math/rand"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/geodrop-system/internal/model"
)

// Partition — один из двух непересекающихся разделов каталога.
type Partition string

const (
	// PartitionMarkers содержит дизайны визуальных маркеров.
	PartitionMarkers Partition = "markers"
	// PartitionFrames содержит рамки и фильтры для медиадропов.
	PartitionFrames Partition = "frames"
)

// AffinityFor возвращает раздел каталога для типа дропа. Каждый тип привязан
// ровно к одному разделу.
func AffinityFor(kind model.DropKind) Partition {
	if kind.RequiresMedia() {
		return PartitionFrames
	}
	return PartitionMarkers
}

// Selection описывает результат выбора элемента каталога. Exhausted — не
// ошибка, а штатное конечное состояние: в разделе не осталось закрытых
// элементов.
type Selection struct {
	Item      string
	Exhausted bool
}

// Catalog хранит разделы каталога. Содержимое неизменно после загрузки.
type Catalog struct {
	partitions map[Partition][]string

	mu  sync.Mutex
	rnd *rand.Rand
}

type catalogFile struct {
	Markers []string `yaml:"markers"`
	Frames  []string `yaml:"frames"`
}

// Load читает каталог из yaml-файла и проверяет, что разделы не пересекаются.
func Load(path string, seed int64) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	return New(f.Markers, f.Frames, seed)
}

// New создаёт каталог из готовых списков. Используется загрузчиком и тестами.
func New(markers, frames []string, seed int64) (*Catalog, error) {
	if len(markers) == 0 || len(frames) == 0 {
		return nil, fmt.Errorf("catalog partition is empty")
	}

	seen := make(map[string]struct{}, len(markers)+len(frames))
	for _, item := range markers {
		if _, ok := seen[item]; ok {
			return nil, fmt.Errorf("duplicate catalog item %q", item)
		}
		seen[item] = struct{}{}
	}
	for _, item := range frames {
		if _, ok := seen[item]; ok {
			return nil, fmt.Errorf("catalog partitions overlap on %q", item)
		}
		seen[item] = struct{}{}
	}

	return &Catalog{
		partitions: map[Partition][]string{
			PartitionMarkers: markers,
			PartitionFrames:  frames,
		},
		rnd: rand.New(rand.NewSource(seed)),
	}, nil
}

// Pick выбирает случайный элемент раздела, отсутствующий в unlocked. Разность
// множеств делает повторный выбор уже открытого элемента структурно
// невозможным. Состояние каталога при этом не меняется: добавить элемент в
// unlocked обязан вызывающий вместе с записью остального прогресса.
func (c *Catalog) Pick(p Partition, unlocked map[string]struct{}) Selection {
	items := c.partitions[p]

	remainder := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := unlocked[item]; !ok {
			remainder = append(remainder, item)
		}
	}

	if len(remainder) == 0 {
		return Selection{Exhausted: true}
	}

	c.mu.Lock()
	idx := c.rnd.Intn(len(remainder))
	c.mu.Unlock()

	return Selection{Item: remainder[idx]}
}

// Size возвращает размер раздела.
func (c *Catalog) Size(p Partition) int {
	return len(c.partitions[p])
}
