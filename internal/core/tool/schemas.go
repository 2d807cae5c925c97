package tool

// Tool name constants
const (
	ToolNameSearchInventory   = "search_inventory"
	ToolNameListingDetails    = "get_listing_details"
	ToolNameCaptureLead       = "capture_lead"
	ToolNameVerifyStaffPIN    = "verify_staff_pin"
	ToolNameQueryInternalData = "query_internal_data"
	ToolNameTransferCall      = "transfer_call"
	ToolNameEndCall           = "end_call"
)

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func numberProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}

func object(properties map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

var SearchInventorySchema = object(map[string]interface{}{
	"category":  stringProp("Equipment category, e.g. 'flatbed trailers', 'sleeper trucks', 'excavators'"),
	"make":      stringProp("Manufacturer, e.g. 'Peterbilt', 'Great Dane'"),
	"min_price": numberProp("Minimum price in dollars"),
	"max_price": numberProp("Maximum price in dollars"),
	"condition": map[string]interface{}{
		"type":        "string",
		"description": "Listing condition",
		"enum":        []string{"new", "used"},
	},
	"limit": map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of results, 1 to 10",
	},
})

var ListingDetailsSchema = object(map[string]interface{}{
	"listing_id": stringProp("The listing id from a previous search"),
}, "listing_id")

var CaptureLeadSchema = object(map[string]interface{}{
	"name":           stringProp("Caller's name"),
	"phone":          stringProp("Callback number. Leave empty to use the number the caller is calling from"),
	"interest":       stringProp("What the caller is looking for"),
	"email":          stringProp("Caller's email, if offered"),
	"listing_id":     stringProp("Listing the caller asked about, if any"),
	"equipment_type": stringProp("Type of equipment, e.g. 'day cab', 'reefer trailer'"),
}, "name", "interest")

var VerifyStaffPINSchema = object(map[string]interface{}{
	"name": stringProp("Staff member's name as they said it"),
	"pin":  stringProp("The 4 to 6 digit staff PIN"),
}, "name", "pin")

var QueryInternalDataSchema = object(map[string]interface{}{
	"query_type": map[string]interface{}{
		"type":        "string",
		"description": "What to look up",
		"enum":        []string{"listing", "inventory", "leads", "usage"},
	},
	"listing_id":   stringProp("Listing id for listing queries"),
	"stock_number": stringProp("Stock number for listing queries"),
}, "query_type")

var TransferCallSchema = object(map[string]interface{}{
	"reason": stringProp("Why the caller wants a person"),
})

var EndCallSchema = object(map[string]interface{}{
	"reason": stringProp("Why the call is ending"),
})
