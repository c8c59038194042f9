package config

// Merge combines src onto dst using the document merge rules of
// SPEC_FULL.md §4.1:
//
//   - mapping ∪ mapping:       recursive merge, scalar replaces scalar
//   - list of mappings with a
//     `name` field on every
//     element:                merged element-wise by name (recursive
//                              merge on match, append on new)
//   - any other list:          replaced wholesale
//   - scalar / null:           replaced wholesale
//
// This is a generalization of a plain list-append deep merge: that merge
// always appends lists, which
// does not satisfy the name-keyed merge law this spec requires (two source
// or sink lists describing overlapping names must merge those entries, not
// duplicate them). dst is mutated and returned.
func Merge(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{})
	}
	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = deepCopy(srcVal)
			continue
		}
		dst[key] = mergeValues(dstVal, srcVal)
	}
	return dst
}

func mergeValues(dst, src interface{}) interface{} {
	switch srcTyped := src.(type) {
	case map[string]interface{}:
		if dstMap, ok := dst.(map[string]interface{}); ok {
			return Merge(dstMap, srcTyped)
		}
		return deepCopy(src)

	case []interface{}:
		if dstList, ok := dst.([]interface{}); ok {
			if isNameKeyedList(dstList) && isNameKeyedList(srcTyped) {
				return mergeNameKeyedLists(dstList, srcTyped)
			}
		}
		return deepCopy(src)

	default:
		return deepCopy(src)
	}
}

// isNameKeyedList reports whether every element of the list is a mapping
// carrying a non-empty `name` key. An empty list is not name-keyed: there is
// nothing to key on, so it falls back to wholesale replacement.
func isNameKeyedList(list []interface{}) bool {
	if len(list) == 0 {
		return false
	}
	for _, el := range list {
		m, ok := el.(map[string]interface{})
		if !ok {
			return false
		}
		name, ok := m["name"].(string)
		if !ok || name == "" {
			return false
		}
	}
	return true
}

func mergeNameKeyedLists(dst, src []interface{}) []interface{} {
	order := make([]string, 0, len(dst))
	byName := make(map[string]map[string]interface{}, len(dst))
	for _, el := range dst {
		m := deepCopy(el).(map[string]interface{})
		name := m["name"].(string)
		order = append(order, name)
		byName[name] = m
	}

	for _, el := range src {
		m := el.(map[string]interface{})
		name := m["name"].(string)
		if existing, ok := byName[name]; ok {
			// declared_in tracks the first document that introduced this
			// entry (§4.1); a later document merging onto it must not move
			// the declaring document even though it's an ordinary scalar
			// key everywhere else.
			incoming := m
			if _, hasExisting := existing["declared_in"]; hasExisting {
				if _, hasIncoming := m["declared_in"]; hasIncoming {
					incoming = deepCopy(m).(map[string]interface{})
					delete(incoming, "declared_in")
				}
			}
			byName[name] = Merge(existing, incoming)
			continue
		}
		order = append(order, name)
		byName[name] = deepCopy(m).(map[string]interface{})
	}

	result := make([]interface{}, 0, len(order))
	for _, name := range order {
		result = append(result, byName[name])
	}
	return result
}

func deepCopy(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, val := range typed {
			out[k] = deepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, val := range typed {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
