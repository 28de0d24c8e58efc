package normalize

import (
	"fmt"

	"jobharvest-engine/internal/domain"
)

// CustomFieldSchema maps canonical fields to the feed's numbered custom
// field slots. Slot numbers are positional and change when the feed operator
// reorders its form, so every layout gets its own version.
type CustomFieldSchema struct {
	Version         int
	KeyFormat       string
	Languages       int
	ExperienceLevel int
	HoursPerWeek    int
}

var CustomFieldsV1 = CustomFieldSchema{
	Version:         1,
	KeyFormat:       "custom_field_%d",
	Languages:       1,
	ExperienceLevel: 6,
	HoursPerWeek:    10,
}

var schemas = map[int]CustomFieldSchema{
	1: CustomFieldsV1,
}

// SchemaByVersion returns the registered layout for v.
func SchemaByVersion(v int) (CustomFieldSchema, error) {
	s, ok := schemas[v]
	if !ok {
		return CustomFieldSchema{}, domain.Wrap(domain.ErrFatalConfig, "normalize", "custom field schema",
			fmt.Sprintf("unknown version %d", v), nil)
	}
	return s, nil
}

func (s CustomFieldSchema) key(slot int) string {
	return fmt.Sprintf(s.KeyFormat, slot)
}
