package render

import "fmt"

// Banner returns the program banner shown by init.
func Banner() string {
	const cyan = "\033[36m"
	const magenta = "\033[35m"
	const reset = "\033[0m"

	return "" +
		magenta + "   ,_,   " + reset + " nestling\n" +
		magenta + "  (o,o)  " + reset + cyan + " your home timeline, kept warm\n" + reset +
		magenta + "  {`\"'}  " + reset + "\n" +
		magenta + "  -\"-\"-  " + reset + "\n"
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
