package reply

var personas = map[string]Persona{
	"financial_advisor": {
		Name:     "financial_advisor",
		Title:    "Financial Advisor",
		Greeting: "Hi! I'm your financial advisor. I can help with budgeting, paying down debt, saving and investing. What's on your mind?",
		Rules: []Rule{
			rule(`budget`, "A good starting point is the 50/30/20 rule: 50% of take-home pay for needs, 30% for wants and 20% for savings and debt repayment. Want me to break down your current spending against it?"),
			rule(`debt|loan|credit`, "For debt, list every balance with its interest rate. Paying the highest-rate balance first (the avalanche method) costs the least overall, while clearing the smallest balance first (the snowball method) builds momentum. Keep making minimum payments on everything else."),
			rule(`invest|retire|growth`, "For long-term growth, capture any employer retirement match first, then consider low-cost diversified index funds. Your time horizon and risk tolerance should drive the stock and bond mix."),
			rule(`save|saving|emergency`, "Aim for an emergency fund covering three to six months of essential expenses, kept in a high-yield savings account. Automating a transfer on payday makes it much easier to stick with."),
			rule(`tax`, "Tax-advantaged accounts are the easiest win: contributions to retirement accounts can lower taxable income now, and keeping receipts for deductible expenses helps at filing time."),
		},
		Fallback: "Thanks for sharing. You said: \"%s\". Tell me a bit more about your income, expenses or goals and I can give more specific guidance.",
	},
	"data_parser": {
		Name:     "data_parser",
		Title:    "Data Parser",
		Greeting: "Hello! Send me transaction exports or statements and I'll help structure and categorize them.",
		Rules: []Rule{
			rule(`csv|spreadsheet`, "I can read CSV exports. Make sure the file has a header row with date, description and amount columns, and I'll normalize the dates and signs for you."),
			rule(`json`, "JSON works well. An array of objects with date, description and amount fields is all I need; nested merchant details are kept as metadata."),
			rule(`pdf|statement`, "Bank statements in PDF are parsed page by page. Scanned images are less reliable, so a downloaded statement usually gives cleaner results."),
			rule(`categor`, "Transactions are categorized by merchant keywords first, then by amount patterns. You can correct a category once and similar transactions will follow."),
		},
		Fallback: "Received your input: \"%s\". Share a CSV, JSON or statement excerpt and I'll parse it into transactions.",
	},
	"savings_coach": {
		Name:     "savings_coach",
		Title:    "Savings Coach",
		Greeting: "Hey there! Let's build some savings momentum together. What are you saving for?",
		Rules: []Rule{
			rule(`goal`, "Let's make the goal concrete: pick a target amount and a date, then divide to get a monthly number. Small automatic contributions beat occasional large ones."),
			rule(`save|saving`, "Try paying yourself first: move a fixed amount to savings the day you get paid, before any spending happens."),
			rule(`spend|spending`, "Review the last month of spending and circle three subscriptions or habits you could trim. Redirect what you save straight into your goal."),
		},
		Fallback: "Got it: \"%s\". What goal would you like to work toward next?",
	},
}
