package banner

import (
	"github.com/charmbracelet/lipgloss"

	"dungeonload/internal/tui/styles"
)

const ascii = `
    ____                                     __                __
   / __ \__  ______  ____ ____  ____  ____  / /___  ____ _____/ /
  / / / / / / / __ \/ __ '/ _ \/ __ \/ __ \/ / __ \/ __ '/ __  / 
 / /_/ / /_/ / / / / /_/ /  __/ /_/ / / / / / /_/ / /_/ / /_/ /  
/_____/\__,_/_/ /_/\__, /\___/\____/_/ /_/_/\____/\__,_/\__,_/   
                  /____/                                         `

func GetString() string {
	style := lipgloss.DefaultRenderer().NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)
	return "\n" + style.Render(ascii) + "\n"
}
