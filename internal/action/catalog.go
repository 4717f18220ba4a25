package action

// ParamType is the wire type of one action parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
)

// ParamSpec describes one parameter slot of a catalog entry.
type ParamSpec struct {
	Type     ParamType
	Required bool
	Default  any
	Enum     []string
	// ItemRef marks string parameters naming an inventory item, so the
	// validator can check availability.
	ItemRef bool
}

// Spec is one entry of the closed action catalog. Unknown action names fail
// validation instead of being looked up at runtime.
type Spec struct {
	Name        string
	Category    Category
	Params      map[string]ParamSpec
	LongRunning bool
	// EmergencyAllowed marks actions the emergency context may execute; the
	// validator rejects everything else while the emergency queue is active.
	EmergencyAllowed bool
}

// Catalog is the closed dispatch table, built once at init.
var Catalog = buildCatalog()

func buildCatalog() map[string]Spec {
	specs := []Spec{
		{
			Name: "moveTo", Category: CategoryMovement, LongRunning: true, EmergencyAllowed: true,
			Params: map[string]ParamSpec{
				"x": {Type: ParamInt, Required: true},
				"y": {Type: ParamInt, Required: true},
				"z": {Type: ParamInt, Required: true},
			},
		},
		{
			Name: "follow", Category: CategoryMovement, LongRunning: true,
			Params: map[string]ParamSpec{
				"player":   {Type: ParamString, Required: true},
				"distance": {Type: ParamInt, Default: 3},
			},
		},
		{
			Name: "flee", Category: CategoryMovement, EmergencyAllowed: true,
			Params: map[string]ParamSpec{
				"distance": {Type: ParamInt, Default: 24},
			},
		},
		{
			Name: "digBlock", Category: CategoryBlockInteraction, LongRunning: true,
			Params: map[string]ParamSpec{
				"x": {Type: ParamInt, Required: true},
				"y": {Type: ParamInt, Required: true},
				"z": {Type: ParamInt, Required: true},
			},
		},
		{
			Name: "placeBlock", Category: CategoryBlockInteraction,
			Params: map[string]ParamSpec{
				"block": {Type: ParamString, Required: true, ItemRef: true},
				"x":     {Type: ParamInt, Required: true},
				"y":     {Type: ParamInt, Required: true},
				"z":     {Type: ParamInt, Required: true},
			},
		},
		{
			Name: "collectBlock", Category: CategoryBlockInteraction, LongRunning: true,
			Params: map[string]ParamSpec{
				"block": {Type: ParamString, Required: true},
				"count": {Type: ParamInt, Default: 1},
			},
		},
		{
			Name: "craftItem", Category: CategoryCrafting,
			Params: map[string]ParamSpec{
				"recipe": {Type: ParamString, Required: true},
				"count":  {Type: ParamInt, Default: 1},
			},
		},
		{
			Name: "smeltItem", Category: CategoryCrafting, LongRunning: true,
			Params: map[string]ParamSpec{
				"item":  {Type: ParamString, Required: true, ItemRef: true},
				"fuel":  {Type: ParamString, Required: true, ItemRef: true},
				"count": {Type: ParamInt, Default: 1},
			},
		},
		{
			Name: "consumeItem", Category: CategorySurvival, EmergencyAllowed: true,
			Params: map[string]ParamSpec{
				"item": {Type: ParamString, Required: true, ItemRef: true},
			},
		},
		{
			Name: "sleep", Category: CategorySurvival,
			Params: map[string]ParamSpec{},
		},
		{
			Name: "wakeUp", Category: CategorySurvival,
			Params: map[string]ParamSpec{},
		},
		{
			Name: "attack", Category: CategoryCombat, EmergencyAllowed: true,
			Params: map[string]ParamSpec{
				"target": {Type: ParamString, Required: true},
			},
		},
		{
			Name: "equipItem", Category: CategoryInventory, EmergencyAllowed: true,
			Params: map[string]ParamSpec{
				"item":        {Type: ParamString, Required: true, ItemRef: true},
				"destination": {Type: ParamString, Default: "hand", Enum: []string{"hand", "off-hand", "head", "torso", "legs", "feet"}},
			},
		},
		{
			Name: "dropItem", Category: CategoryInventory,
			Params: map[string]ParamSpec{
				"item":  {Type: ParamString, Required: true, ItemRef: true},
				"count": {Type: ParamInt, Default: 1},
			},
		},
		{
			Name: "pickupItems", Category: CategoryInventory, EmergencyAllowed: true,
			Params: map[string]ParamSpec{
				"radius": {Type: ParamInt, Default: 8},
			},
		},
		{
			Name: "openContainer", Category: CategoryInventory,
			Params: map[string]ParamSpec{
				"x": {Type: ParamInt, Required: true},
				"y": {Type: ParamInt, Required: true},
				"z": {Type: ParamInt, Required: true},
			},
		},
		{
			Name: "closeContainer", Category: CategoryInventory,
			Params: map[string]ParamSpec{},
		},
		{
			Name: "depositItems", Category: CategoryInventory,
			Params: map[string]ParamSpec{
				"item":  {Type: ParamString, Required: true, ItemRef: true},
				"count": {Type: ParamInt, Default: 1},
			},
		},
		{
			Name: "sendChat", Category: CategorySurvival,
			Params: map[string]ParamSpec{
				"message": {Type: ParamString, Required: true},
			},
		},
		{
			Name: "wait", Category: CategorySurvival, EmergencyAllowed: true,
			Params: map[string]ParamSpec{
				"durationMs": {Type: ParamInt, Default: 1000},
			},
		},
	}

	catalog := make(map[string]Spec, len(specs))
	for _, s := range specs {
		catalog[s.Name] = s
	}
	return catalog
}

// Recipes maps craftable recipe names to required materials, used by the
// validator's resource-availability check.
var Recipes = map[string][]Material{
	"crafting_table": {{"oak_planks", 4}},
	"oak_planks":     {{"oak_log", 1}},
	"stick":          {{"oak_planks", 2}},
	"wooden_pickaxe": {{"oak_planks", 3}, {"stick", 2}},
	"wooden_sword":   {{"oak_planks", 2}, {"stick", 1}},
	"stone_pickaxe":  {{"cobblestone", 3}, {"stick", 2}},
	"stone_sword":    {{"cobblestone", 2}, {"stick", 1}},
	"furnace":        {{"cobblestone", 8}},
	"torch":          {{"coal", 1}, {"stick", 1}},
	"bed":            {{"white_wool", 3}, {"oak_planks", 3}},
	"iron_pickaxe":   {{"iron_ingot", 3}, {"stick", 2}},
	"iron_sword":     {{"iron_ingot", 2}, {"stick", 1}},
	"shield":         {{"oak_planks", 6}, {"iron_ingot", 1}},
}

type Material struct {
	Name  string
	Count int
}

// FoodValues ranks edible items for the hunger reflex; higher is better.
var FoodValues = map[string]int{
	"golden_apple":    20,
	"cooked_beef":     8,
	"cooked_porkchop": 8,
	"cooked_chicken":  6,
	"bread":           5,
	"baked_potato":    5,
	"apple":           4,
	"cooked_cod":      5,
	"carrot":          3,
	"potato":          1,
	"rotten_flesh":    1,
}
