package cloudysetup

import (
	"maps"
	"slices"
)

// TagKeyManagedBy marks resources created through this tool.
const TagKeyManagedBy = "cloudysetup:managed-by"

// managedByValue is the value of the TagKeyManagedBy tag.
const managedByValue = "cloudysetup"

// tagsProperty is the conventional Cloud Control property holding tags.
const tagsProperty = "Tags"

// buildResourceTags merges the default tags with user-defined tags from the
// config. User-defined tags take precedence when keys overlap.
func buildResourceTags(userTags map[string]string) map[string]string {
	tags := make(map[string]string, len(userTags)+1)
	tags[TagKeyManagedBy] = managedByValue
	for k, v := range userTags {
		tags[k] = v
	}
	return tags
}

// applyDefaultTags returns props with tags merged into the Tags property.
// Tags already present in props win on key collisions. When Tags exists but
// is not a list of {Key, Value} objects (some types use a map) props is
// returned unchanged.
func applyDefaultTags(props Properties, tags map[string]string) Properties {
	if len(tags) == 0 {
		return props
	}

	var existing []Value
	present := make(map[string]bool)
	if v, ok := props.Get(tagsProperty); ok {
		items, isArray := v.Items()
		if !isArray {
			return props
		}
		for _, item := range items {
			obj, isObj := item.Obj()
			if !isObj {
				return props
			}
			key, _ := obj.Get("Key")
			k, isStr := key.Str()
			if !isStr {
				return props
			}
			present[k] = true
		}
		existing = items
	}

	merged := make([]Value, 0, len(existing)+len(tags))
	merged = append(merged, existing...)
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		if present[k] {
			continue
		}
		var tag Properties
		tag.Set("Key", String(k))
		tag.Set("Value", String(tags[k]))
		merged = append(merged, Object(tag))
	}

	out := props.clone()
	out.Set(tagsProperty, Array(merged...))
	return out
}
