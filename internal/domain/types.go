package domain

type SortMode string

const (
	SortBySize SortMode = "size"
	SortByName SortMode = "name"
)

func (mode SortMode) Next() SortMode {
	if mode == SortBySize {
		return SortByName
	}
	return SortBySize
}
