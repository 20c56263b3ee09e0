package portal

import "strconv"

// Portal markup. Only these constants know the legacy site's element names.
const (
	loginUserInput     = `input[name="txtUserName"]`
	loginPasswordInput = `input[name="txtPassword"]`
	loginTrigger       = `img[onclick*="Login"]`

	listSearchInput  = `input[id*="txtPONumber"]`
	listSearchButton = `input[id*="btnSearch"]`
)

var (
	navFrame     = FramePattern{Name: "menu", URLContains: "menu"}
	contentFrame = FramePattern{Name: "main", URLContains: "main"}

	listRoute = MenuRoute{
		Nav:     navFrame,
		Menu:    `text=Purchase Orders`,
		Link:    `a[href*="POList"]`,
		Content: contentFrame,
	}

	messagesRoute = MenuRoute{
		Nav:     navFrame,
		Menu:    `text=Messages`,
		Link:    `a[href*="Comment"]`,
		Content: contentFrame,
	}
)

func messageTrigger(refNumber string) string {
	return "a:text-is(" + strconv.Quote(refNumber) + ")"
}
