package suggest

// skillEntry maps a lowercase keyword found in a description to its
// canonical display name. Order matters: matches keep first-match order.
type skillEntry struct {
	Keyword   string
	Canonical string
}

var skillTable = []skillEntry{
	{"react native", "React Native"},
	{"react", "React"},
	{"vue", "Vue.js"},
	{"angular", "Angular"},
	{"node", "Node.js"},
	{"python", "Python"},
	{"php", "PHP"},
	{"wordpress", "WordPress"},
	{"shopify", "Shopify"},
	{"flutter", "Flutter"},
	{"docker", "Docker"},
	{"sql", "SQL"},
	{"figma", "Figma"},
	{"photoshop", "Photoshop"},
	{"illustrator", "Illustrator"},
	{"seo", "SEO"},
	{"sea", "SEA"},
	{"google ads", "Google Ads"},
	{"copywriting", "Copywriting"},
	{"api", "API"},
}

var tagMarkers = []string{"urgent", "mobile", "responsive", "e-commerce", "api", "seo", "moderne", "professionnel"}

// delayBase holds baseline delivery estimates per category, in days.
var delayBase = map[string]int{
	"development":  20,
	"design":       10,
	"marketing":    15,
	"consulting":   12,
	"construction": 8,
	"services":     7,
}

const delayBaseDefault = 14

var genericCriteria = []string{
	"Le livrable correspond à la description de la mission",
	"Les délais convenus sont respectés",
	"La communication reste régulière pendant la mission",
	"Les retours du client sont pris en compte",
	"La livraison finale inclut les fichiers sources",
}

var categoryCriteria = map[string][]string{
	"development": {
		"Le code est documenté et versionné",
		"Les tests passent sur l'environnement cible",
	},
	"design": {
		"Les maquettes couvrent les écrans principaux",
		"La charte graphique est respectée",
	},
	"marketing": {
		"Les indicateurs de performance sont définis",
		"Un rapport de résultats est fourni",
	},
}

// subCategoryRules infers a standard sub-category from matched skills.
var subCategoryRules = []struct {
	Category string
	Skills   []string
	Sub      string
}{
	{"development", []string{"React Native", "Flutter"}, "mobile"},
	{"development", []string{"React", "Vue.js", "Angular", "WordPress", "Shopify"}, "web"},
	{"design", []string{"Figma"}, "ui-ux"},
	{"design", []string{"Photoshop", "Illustrator"}, "graphisme"},
	{"marketing", []string{"SEO", "SEA", "Google Ads"}, "acquisition"},
}
