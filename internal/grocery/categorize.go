// Package grocery guesses item metadata from free-text names so clients can
// add an item with nothing but a name.
package grocery

import (
	"strings"

	"github.com/dukerupert/larder/internal/model"
)

// Categorize returns the category for an item name. Matching ignores case:
// exact names first, then keywords contained in the name. Unknown names are
// CategoryOther.
func Categorize(itemName string) model.Category {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return model.CategoryOther
	}

	if cat, ok := exactMatch[name]; ok {
		return cat
	}

	for _, kw := range keywordMatches {
		if strings.Contains(name, kw.keyword) {
			return kw.category
		}
	}

	return model.CategoryOther
}

// DefaultType is the item type assumed for a category when the client does
// not say.
func DefaultType(c model.Category) model.ItemType {
	switch c {
	case model.CategoryDairyEggs, model.CategoryBakery, model.CategoryMeatFish,
		model.CategoryProduce, model.CategoryFrozen:
		return model.TypePerishable
	}
	return model.TypeNonPerishable
}

const (
	dairy     = model.CategoryDairyEggs
	bakery    = model.CategoryBakery
	meat      = model.CategoryMeatFish
	produce   = model.CategoryProduce
	spices    = model.CategorySpices
	pulses    = model.CategoryPulses
	grains    = model.CategoryGrains
	sauces    = model.CategoryCondiments
	baking    = model.CategoryBaking
	breakfast = model.CategoryBreakfast
	snacks    = model.CategorySnacks
	frozen    = model.CategoryFrozen
	drinks    = model.CategoryBeverages
	cleaning  = model.CategoryHousehold
	personal  = model.CategoryPersonalCare
)

var exactMatch = map[string]model.Category{
	"milk": dairy, "eggs": dairy, "butter": dairy, "cheese": dairy, "yogurt": dairy,
	"curd": dairy, "paneer": dairy, "ghee": dairy, "cream": dairy, "sour cream": dairy,
	"cream cheese": dairy, "cottage cheese": dairy, "half and half": dairy,

	"bread": bakery, "bagels": bakery, "buns": bakery, "rolls": bakery, "pita": bakery,
	"croissants": bakery, "muffins": bakery, "tortillas": bakery, "naan": bakery,

	"chicken": meat, "beef": meat, "pork": meat, "lamb": meat, "mutton": meat,
	"turkey": meat, "bacon": meat, "ham": meat, "sausage": meat, "fish": meat,
	"salmon": meat, "tuna": meat, "shrimp": meat, "prawns": meat, "crab": meat,

	"apples": produce, "bananas": produce, "oranges": produce, "lemons": produce,
	"limes": produce, "tomatoes": produce, "potatoes": produce, "onions": produce,
	"garlic": produce, "ginger": produce, "spinach": produce, "lettuce": produce,
	"carrots": produce, "cucumber": produce, "coriander": produce, "cilantro": produce,
	"mint": produce, "grapes": produce, "mango": produce, "avocado": produce,

	"salt": spices, "pepper": spices, "black pepper": spices, "turmeric": spices,
	"cumin": spices, "paprika": spices, "cinnamon": spices, "chili powder": spices,
	"garam masala": spices, "oregano": spices, "cardamom": spices, "cloves": spices,

	"lentils": pulses, "chickpeas": pulses, "kidney beans": pulses, "black beans": pulses,
	"dal": pulses, "moong dal": pulses, "toor dal": pulses, "split peas": pulses,

	"rice": grains, "basmati rice": grains, "pasta": grains, "spaghetti": grains,
	"noodles": grains, "quinoa": grains, "couscous": grains, "barley": grains, "atta": grains,

	"ketchup": sauces, "mustard": sauces, "mayonnaise": sauces, "soy sauce": sauces,
	"hot sauce": sauces, "vinegar": sauces, "salsa": sauces, "pickle": sauces,
	"olive oil": sauces, "oil": sauces,

	"flour": baking, "sugar": baking, "brown sugar": baking, "baking soda": baking,
	"baking powder": baking, "yeast": baking, "vanilla extract": baking, "cocoa powder": baking,

	"cereal": breakfast, "oats": breakfast, "oatmeal": breakfast, "granola": breakfast,
	"cornflakes": breakfast, "muesli": breakfast, "honey": breakfast, "jam": breakfast,
	"peanut butter": breakfast, "maple syrup": breakfast,

	"chips": snacks, "crackers": snacks, "cookies": snacks, "biscuits": snacks,
	"popcorn": snacks, "pretzels": snacks, "nuts": snacks, "almonds": snacks,
	"chocolate": snacks, "candy": snacks, "trail mix": snacks,

	"ice cream": frozen, "frozen peas": frozen, "frozen pizza": frozen,
	"frozen vegetables": frozen, "popsicles": frozen,

	"water": drinks, "juice": drinks, "coffee": drinks, "tea": drinks, "soda": drinks,
	"beer": drinks, "wine": drinks, "lemonade": drinks, "kombucha": drinks,

	"paper towels": cleaning, "toilet paper": cleaning, "trash bags": cleaning,
	"dish soap": cleaning, "detergent": cleaning, "bleach": cleaning, "sponges": cleaning,
	"aluminum foil": cleaning, "cling film": cleaning, "napkins": cleaning,

	"shampoo": personal, "conditioner": personal, "soap": personal, "body wash": personal,
	"toothpaste": personal, "toothbrush": personal, "deodorant": personal,
	"lotion": personal, "sunscreen": personal, "floss": personal, "razors": personal,
}

type keywordMatch struct {
	keyword  string
	category model.Category
}

// Longer, more specific keywords come first so "peanut butter" is not
// filed under dairy and "ice cream" is not filed under dairy either.
var keywordMatches = []keywordMatch{
	{"peanut butter", breakfast},
	{"ice cream", frozen},
	{"frozen", frozen},
	{"baking powder", baking},
	{"baking soda", baking},
	{"dish soap", cleaning},
	{"body wash", personal},
	{"hand wash", personal},
	{"soy sauce", sauces},
	{"hot sauce", sauces},
	{"olive oil", sauces},
	{"coconut milk", sauces},
	{"almond milk", drinks},
	{"oat milk", drinks},
	{"chicken", meat},
	{"beef", meat},
	{"pork", meat},
	{"mince", meat},
	{"fillet", meat},
	{"sausage", meat},
	{"yogurt", dairy},
	{"cheese", dairy},
	{"milk", dairy},
	{"butter", dairy},
	{"egg", dairy},
	{"cream", dairy},
	{"bread", bakery},
	{"bagel", bakery},
	{"bun", bakery},
	{"tortilla", bakery},
	{"cake", bakery},
	{"dal", pulses},
	{"lentil", pulses},
	{"bean", pulses},
	{"chickpea", pulses},
	{"rice", grains},
	{"pasta", grains},
	{"noodle", grains},
	{"flour", baking},
	{"sugar", baking},
	{"masala", spices},
	{"powder", spices},
	{"seasoning", spices},
	{"spice", spices},
	{"sauce", sauces},
	{"pickle", sauces},
	{"vinegar", sauces},
	{"cereal", breakfast},
	{"oat", breakfast},
	{"granola", breakfast},
	{"juice", drinks},
	{"coffee", drinks},
	{"tea", drinks},
	{"soda", drinks},
	{"water", drinks},
	{"chip", snacks},
	{"cracker", snacks},
	{"cookie", snacks},
	{"biscuit", snacks},
	{"chocolate", snacks},
	{"snack", snacks},
	{"berries", produce},
	{"berry", produce},
	{"apple", produce},
	{"tomato", produce},
	{"potato", produce},
	{"onion", produce},
	{"pepper", produce},
	{"lettuce", produce},
	{"fruit", produce},
	{"detergent", cleaning},
	{"cleaner", cleaning},
	{"towel", cleaning},
	{"trash bag", cleaning},
	{"foil", cleaning},
	{"shampoo", personal},
	{"toothpaste", personal},
	{"deodorant", personal},
	{"lotion", personal},
	{"razor", personal},
}
