package template

// Layer builds template data from layers, later keys shadowing earlier ones.
// Nil layers are skipped and no input map is modified.
func Layer(layers ...map[string]interface{}) map[string]interface{} {
	size := 0
	for _, l := range layers {
		size += len(l)
	}
	data := make(map[string]interface{}, size)
	for _, l := range layers {
		for k, v := range l {
			data[k] = v
		}
	}
	return data
}
