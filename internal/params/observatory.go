package params

import "fmt"

// ESO site identifiers understood by the sky-model service.
var observatoryIDs = map[string]string{
	"lasilla":    "2400",
	"paranal":    "2640",
	"armazones":  "3060",
	"3060m":      "3060",
	"highanddry": "5000",
	"5000m":      "5000",
}

// canonical names for site identifiers, used when reading almanac output
var observatoryNames = map[string]string{
	"2400": "lasilla",
	"2640": "paranal",
	"3060": "armazones",
	"5000": "highanddry",
}

// ObservatoryID converts an observatory name to its ESO site ID. Site IDs are
// returned unchanged.
func ObservatoryID(name string) (string, error) {
	if id, ok := observatoryIDs[name]; ok {
		return id, nil
	}
	if _, ok := observatoryNames[name]; ok {
		return name, nil
	}
	return "", fmt.Errorf("unknown observatory %q", name)
}

// ObservatoryName converts an ESO site ID back to an observatory name. Names
// are returned unchanged.
func ObservatoryName(id string) (string, error) {
	if name, ok := observatoryNames[id]; ok {
		return name, nil
	}
	if _, ok := observatoryIDs[id]; ok {
		return id, nil
	}
	return "", fmt.Errorf("unknown observatory %q", id)
}
